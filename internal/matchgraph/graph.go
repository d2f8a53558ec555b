// Package matchgraph builds deduplicated geometric-match graphs across
// assemblies and exports them as duplicate reports, DOT graphs, and node
// dictionaries.
package matchgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NodeInfo is one model in the graph. Index is assigned on first insertion
// and never changes afterwards.
type NodeInfo struct {
	Index      int               `json:"index"`
	UUID       uuid.UUID         `json:"uuid"`
	Name       string            `json:"name,omitempty"`
	FolderName string            `json:"folderName,omitempty"`
	Unresolved bool              `json:"unresolved,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Edge is one undirected match relation. Forward scores Source against
// Target; Reverse scores the opposite direction. The orientation is the one
// first observed.
type Edge struct {
	Source  uuid.UUID `json:"source"`
	Target  uuid.UUID `json:"target"`
	Forward float64   `json:"forward"`
	Reverse float64   `json:"reverse"`
}

// edgeKey identifies an edge regardless of orientation.
type edgeKey struct{ lo, hi uuid.UUID }

func keyFor(a, b uuid.UUID) edgeKey {
	if strings.Compare(a.String(), b.String()) < 0 {
		return edgeKey{lo: a, hi: b}
	}
	return edgeKey{lo: b, hi: a}
}

// Graph is a match graph with identity-stable node indices. Not safe for
// concurrent mutation; the builder funnels all writes through one goroutine.
type Graph struct {
	nodes map[uuid.UUID]*NodeInfo
	order []uuid.UUID
	edges map[edgeKey]*Edge
	keys  []edgeKey
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[uuid.UUID]*NodeInfo),
		edges: make(map[edgeKey]*Edge),
	}
}

// Insert adds a node and returns its index. Inserting an existing UUID is a
// no-op that returns the already-assigned index; the first insertion wins and
// later attribute values are ignored.
func (g *Graph) Insert(id uuid.UUID, name, folderName string, unresolved bool) int {
	if n, ok := g.nodes[id]; ok {
		return n.Index
	}
	n := &NodeInfo{
		Index:      len(g.order),
		UUID:       id,
		Name:       name,
		FolderName: folderName,
		Unresolved: unresolved,
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n.Index
}

// Node returns the node for id, if present.
func (g *Graph) Node(id uuid.UUID) (*NodeInfo, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in index order.
func (g *Graph) Nodes() []*NodeInfo {
	out := make([]*NodeInfo, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.order) }

// EdgeCount returns the edge count.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// AddEdge records a match between two inserted nodes. Self-edges are
// discarded. Observing an existing edge again (in either orientation) merges
// by keeping the highest score per direction.
func (g *Graph) AddEdge(source, target uuid.UUID, forward, reverse float64) bool {
	if source == target {
		return false
	}
	if _, ok := g.nodes[source]; !ok {
		return false
	}
	if _, ok := g.nodes[target]; !ok {
		return false
	}
	key := keyFor(source, target)
	e, ok := g.edges[key]
	if !ok {
		g.edges[key] = &Edge{Source: source, Target: target, Forward: forward, Reverse: reverse}
		g.keys = append(g.keys, key)
		return true
	}
	if e.Source != source {
		forward, reverse = reverse, forward
	}
	if forward > e.Forward {
		e.Forward = forward
	}
	if reverse > e.Reverse {
		e.Reverse = reverse
	}
	return true
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.keys))
	for i, k := range g.keys {
		out[i] = *g.edges[k]
	}
	return out
}

// DuplicateRow is one line of the duplicate report.
type DuplicateRow struct {
	SourceName   string            `json:"sourceName"`
	SourceUUID   uuid.UUID         `json:"sourceUuid"`
	SourceFolder string            `json:"sourceFolder"`
	MatchName    string            `json:"matchName"`
	MatchUUID    uuid.UUID         `json:"matchUuid"`
	MatchFolder  string            `json:"matchFolder"`
	Forward      float64           `json:"forward"`
	Reverse      float64           `json:"reverse"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DuplicateTable derives the duplicate report from the graph: one row per
// edge, ordered by forward score descending, then source UUID, then match
// UUID. The same snapshot feeds every export format.
func (g *Graph) DuplicateTable() []DuplicateRow {
	rows := make([]DuplicateRow, 0, len(g.keys))
	for _, k := range g.keys {
		e := g.edges[k]
		src, tgt := g.nodes[e.Source], g.nodes[e.Target]
		rows = append(rows, DuplicateRow{
			SourceName:   src.Name,
			SourceUUID:   src.UUID,
			SourceFolder: src.FolderName,
			MatchName:    tgt.Name,
			MatchUUID:    tgt.UUID,
			MatchFolder:  tgt.FolderName,
			Forward:      e.Forward,
			Reverse:      e.Reverse,
			Metadata:     src.Metadata,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Forward != rows[j].Forward {
			return rows[i].Forward > rows[j].Forward
		}
		if c := strings.Compare(rows[i].SourceUUID.String(), rows[j].SourceUUID.String()); c != 0 {
			return c < 0
		}
		return strings.Compare(rows[i].MatchUUID.String(), rows[j].MatchUUID.String()) < 0
	})
	return rows
}

// WriteDOT writes the graph as a Graphviz digraph: one statement per node
// labeled with the model name, one directed edge per match relation in its
// stored orientation, labeled with the higher of the two direction scores.
func (g *Graph) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph matches {"); err != nil {
		return err
	}
	for _, id := range g.order {
		n := g.nodes[id]
		label := n.Name
		if label == "" {
			label = n.UUID.String()
		}
		if _, err := fmt.Fprintf(w, "    %d [ label = %q ]\n", n.Index, label); err != nil {
			return err
		}
	}
	for _, k := range g.keys {
		e := g.edges[k]
		score := e.Forward
		if e.Reverse > score {
			score = e.Reverse
		}
		src, tgt := g.nodes[e.Source], g.nodes[e.Target]
		if _, err := fmt.Fprintf(w, "    %d -> %d [ label = \"%.2f\" ]\n", src.Index, tgt.Index, score); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// dictionaryEntry is one node in the dictionary export.
type dictionaryEntry struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name,omitempty"`
}

// WriteDictionary writes the index -> model dictionary as JSON. Every node is
// present, stubs included.
func (g *Graph) WriteDictionary(w io.Writer) error {
	dict := make(map[string]dictionaryEntry, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		dict[fmt.Sprintf("%d", n.Index)] = dictionaryEntry{UUID: n.UUID, Name: n.Name}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dict)
}
