package assembly

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/partcli/internal/models"
)

// fakeLookup serves model records and assembly trees from memory.
type fakeLookup struct {
	models map[uuid.UUID]*models.Model
	trees  map[uuid.UUID]*models.AssemblyTreeNode
	calls  int
}

func (f *fakeLookup) Model(_ context.Context, id uuid.UUID) (*models.Model, error) {
	f.calls++
	m, ok := f.models[id]
	if !ok {
		return nil, fmt.Errorf("model %s: not found", id)
	}
	return m, nil
}

func (f *fakeLookup) AssemblyTree(_ context.Context, id uuid.UUID) (*models.AssemblyTreeNode, error) {
	t, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("tree %s: not found", id)
	}
	return t, nil
}

func id(n byte) uuid.UUID {
	return uuid.UUID{n}
}

func part(u uuid.UUID, name string, folder uint32) *models.Model {
	return &models.Model{UUID: u, Name: name, FolderID: folder, State: models.StateFinished}
}

func asm(u uuid.UUID, name string, folder uint32) *models.Model {
	m := part(u, name, folder)
	m.IsAssembly = true
	return m
}

func TestResolve_namesAndFolders(t *testing.T) {
	root, gear, bolt := id(1), id(2), id(3)
	f := &fakeLookup{
		models: map[uuid.UUID]*models.Model{
			root: asm(root, "gearbox", 1),
			gear: part(gear, "gear", 1),
			bolt: part(bolt, "bolt", 2),
		},
		trees: map[uuid.UUID]*models.AssemblyTreeNode{
			root: {ModelID: root, Children: []models.AssemblyTreeNode{
				{ModelID: gear}, {ModelID: bolt},
			}},
		},
	}
	folders := models.FolderList{{ID: 1, Name: "drive"}, {ID: 2, Name: "fasteners"}}
	r := NewResolver(f, WithFolders(folders))

	node, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if node.Name != "gearbox" || len(node.Children) != 2 {
		t.Fatalf("unexpected root: %+v", node)
	}
	if node.Children[0].Name != "gear" || node.Children[0].FolderName != "drive" {
		t.Errorf("child 0: %+v", node.Children[0])
	}
	if node.Children[1].FolderName != "fasteners" {
		t.Errorf("child 1: %+v", node.Children[1])
	}
	if len(r.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings())
	}
}

func TestResolve_danglingChildBecomesStub(t *testing.T) {
	root, gear, ghost := id(1), id(2), id(9)
	f := &fakeLookup{
		models: map[uuid.UUID]*models.Model{
			root: asm(root, "gearbox", 1),
			gear: part(gear, "gear", 1),
		},
		trees: map[uuid.UUID]*models.AssemblyTreeNode{
			root: {ModelID: root, Children: []models.AssemblyTreeNode{
				{ModelID: gear}, {ModelID: ghost},
			}},
		},
	}
	r := NewResolver(f)

	node, err := r.Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("dangling child must not fail resolution: %v", err)
	}
	if len(node.Children) != 2 {
		t.Fatalf("stub child missing: %+v", node)
	}
	stub := node.Children[1]
	if !stub.Unresolved || stub.UUID != ghost || stub.Name != "" {
		t.Errorf("unexpected stub: %+v", stub)
	}
	warnings := r.Warnings()
	if len(warnings) != 1 || warnings[0].ModelID != ghost {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestResolve_missingRootIsFatal(t *testing.T) {
	f := &fakeLookup{models: map[uuid.UUID]*models.Model{}}
	r := NewResolver(f)
	_, err := r.Resolve(context.Background(), id(1))
	if !errors.Is(err, ErrResolution) {
		t.Errorf("want ErrResolution, got %v", err)
	}
}

func TestResolve_cycleDetected(t *testing.T) {
	a, b := id(1), id(2)
	f := &fakeLookup{
		models: map[uuid.UUID]*models.Model{
			a: asm(a, "a", 1),
			b: asm(b, "b", 1),
		},
		trees: map[uuid.UUID]*models.AssemblyTreeNode{
			a: {ModelID: a, Children: []models.AssemblyTreeNode{{ModelID: b}}},
			b: {ModelID: b, Children: []models.AssemblyTreeNode{{ModelID: a}}},
		},
	}
	r := NewResolver(f)
	_, err := r.Resolve(context.Background(), a)
	if !errors.Is(err, ErrStructure) {
		t.Errorf("want ErrStructure, got %v", err)
	}
}

func TestResolve_depthBound(t *testing.T) {
	// Chain of nested sub-assemblies deeper than the bound.
	const depth = 6
	ms := make(map[uuid.UUID]*models.Model)
	trees := make(map[uuid.UUID]*models.AssemblyTreeNode)
	for i := 0; i <= depth; i++ {
		u := id(byte(i + 1))
		ms[u] = asm(u, fmt.Sprintf("level-%d", i), 1)
		if i < depth {
			trees[u] = &models.AssemblyTreeNode{
				ModelID:  u,
				Children: []models.AssemblyTreeNode{{ModelID: id(byte(i + 2))}},
			}
		} else {
			ms[u].IsAssembly = false
		}
	}
	f := &fakeLookup{models: ms, trees: trees}

	r := NewResolver(f, WithMaxDepth(3))
	_, err := r.Resolve(context.Background(), id(1))
	if !errors.Is(err, ErrStructure) {
		t.Errorf("want ErrStructure for deep chain, got %v", err)
	}

	// A generous bound resolves the same chain.
	r2 := NewResolver(f, WithMaxDepth(depth+1))
	if _, err := r2.Resolve(context.Background(), id(1)); err != nil {
		t.Errorf("chain within bound failed: %v", err)
	}
}

func TestResolve_memoizesLookups(t *testing.T) {
	root, bolt := id(1), id(2)
	f := &fakeLookup{
		models: map[uuid.UUID]*models.Model{
			root: asm(root, "plate", 1),
			bolt: part(bolt, "bolt", 1),
		},
		trees: map[uuid.UUID]*models.AssemblyTreeNode{
			root: {ModelID: root, Children: []models.AssemblyTreeNode{
				{ModelID: bolt}, {ModelID: bolt}, {ModelID: bolt},
			}},
		},
	}
	r := NewResolver(f)
	if _, err := r.Resolve(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	// One lookup for the root, one for the repeated bolt.
	if f.calls != 2 {
		t.Errorf("lookup called %d times, want 2", f.calls)
	}
}

func TestFlatten_uniqueDepthFirst(t *testing.T) {
	bolt := &Node{UUID: id(3), Name: "bolt"}
	sub := &Node{UUID: id(2), Name: "sub", Children: []*Node{bolt}}
	root := &Node{UUID: id(1), Name: "root", Children: []*Node{sub, bolt, sub}}

	flat := Flatten(root)
	if len(flat) != 3 {
		t.Fatalf("got %d nodes, want 3: %v", len(flat), flat)
	}
	want := []string{"root", "sub", "bolt"}
	for i, n := range flat {
		if n.Name != want[i] {
			t.Errorf("flat[%d] = %s, want %s", i, n.Name, want[i])
		}
	}
}

func TestBOM_counts(t *testing.T) {
	bolt := &Node{UUID: id(3), Name: "bolt"}
	sub := &Node{UUID: id(2), Name: "sub", Children: []*Node{bolt, bolt}}
	root := &Node{UUID: id(1), Name: "root", Children: []*Node{sub, bolt}}

	bom := BOM(root)
	if len(bom) != 2 {
		t.Fatalf("got %d lines, want 2", len(bom))
	}
	if bom[0].Node.Name != "sub" || bom[0].Count != 1 {
		t.Errorf("line 0: %s x%d", bom[0].Node.Name, bom[0].Count)
	}
	if bom[1].Node.Name != "bolt" || bom[1].Count != 3 {
		t.Errorf("line 1: %s x%d", bom[1].Node.Name, bom[1].Count)
	}
}
