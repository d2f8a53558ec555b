package main

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/partcli/internal/matchgraph"
	"github.com/hyperjump/partcli/internal/models"
)

func id(n byte) uuid.UUID {
	return uuid.UUID{n}
}

func TestSummarizeStatus(t *testing.T) {
	folders := models.FolderList{{ID: 1, Name: "gears"}, {ID: 2, Name: "bolts"}}
	ms := []models.Model{
		{UUID: id(1), FolderID: 1, State: models.StateFinished},
		{UUID: id(2), FolderID: 1, State: models.StateProcessing},
		{UUID: id(3), FolderID: 1, State: models.StateFailed},
		{UUID: id(4), FolderID: 2, State: models.StateFinished},
	}

	got := summarizeStatus(ms, []uint32{1, 2, 3}, folders)
	if len(got) != 3 {
		t.Fatalf("got %d folders, want 3", len(got))
	}
	if got[0].FolderID != 1 || got[0].Total != 3 || got[0].Finished != 1 || got[0].Processing != 1 || got[0].Failed != 1 {
		t.Errorf("folder 1 summary = %+v", got[0])
	}
	if got[0].FolderName != "gears" {
		t.Errorf("folder 1 name = %q, want gears", got[0].FolderName)
	}
	if got[1].Total != 1 || got[1].Finished != 1 {
		t.Errorf("folder 2 summary = %+v", got[1])
	}
	// An empty scope folder still gets a line.
	if got[2].FolderID != 3 || got[2].Total != 0 {
		t.Errorf("folder 3 summary = %+v", got[2])
	}
}

func TestSummarizeStatus_unknownState(t *testing.T) {
	folders := models.FolderList{{ID: 1, Name: "gears"}}
	ms := []models.Model{{UUID: id(1), FolderID: 1, State: "queued"}}

	got := summarizeStatus(ms, []uint32{1}, folders)
	if got[0].Other != 1 || got[0].Finished != 0 {
		t.Errorf("summary = %+v, want unknown state counted as other", got[0])
	}
}

func TestPruneOutsideScope(t *testing.T) {
	folders := models.FolderList{{ID: 1, Name: "gears"}, {ID: 2, Name: "archive"}}
	a, b, ext := id(1), id(2), id(3)

	g := matchgraph.NewGraph()
	g.Insert(a, "gear-a", "gears", false)
	g.Insert(b, "gear-b", "gears", false)
	g.Insert(ext, "old-gear", "archive", false)
	g.AddEdge(a, b, 0.95, 0.94)
	g.AddEdge(a, ext, 0.99, 0.98)

	pruned := pruneOutsideScope(g, folders, []uint32{1})
	if pruned.Len() != 2 {
		t.Errorf("node count = %d, want 2", pruned.Len())
	}
	if _, ok := pruned.Node(ext); ok {
		t.Error("out-of-scope node should be dropped")
	}
	if pruned.EdgeCount() != 1 {
		t.Errorf("edge count = %d, want 1", pruned.EdgeCount())
	}
	rows := pruned.DuplicateTable()
	if len(rows) != 1 || rows[0].SourceUUID != a || rows[0].MatchUUID != b {
		t.Errorf("rows = %+v, want the in-scope pair only", rows)
	}
}

func TestPruneOutsideScope_reassignsIndicesInOrder(t *testing.T) {
	folders := models.FolderList{{ID: 1, Name: "gears"}, {ID: 2, Name: "archive"}}
	a, b, c := id(1), id(2), id(3)

	g := matchgraph.NewGraph()
	g.Insert(a, "gear-a", "gears", false)
	g.Insert(b, "old-gear", "archive", false)
	g.Insert(c, "gear-c", "gears", false)

	pruned := pruneOutsideScope(g, folders, []uint32{1})
	na, _ := pruned.Node(a)
	nc, _ := pruned.Node(c)
	if na.Index != 0 || nc.Index != 1 {
		t.Errorf("indices = %d, %d; want 0, 1", na.Index, nc.Index)
	}
}
