// Package assembly resolves assembly trees into named part hierarchies.
// References to models that no longer resolve become stub nodes instead of
// failing the traversal; only an unreachable root is fatal.
package assembly

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/partcli/internal/models"
)

// Sentinel errors callers can test with errors.Is.
var (
	// ErrResolution means the root model itself could not be resolved.
	ErrResolution = errors.New("assembly resolution failed")
	// ErrStructure means the tree exceeded the depth bound or contains a cycle.
	ErrStructure = errors.New("assembly structure invalid")
)

// DefaultMaxDepth bounds tree nesting. Real assemblies are far shallower;
// anything deeper indicates corrupt structure data.
const DefaultMaxDepth = 64

// ModelLookup is the remote surface the resolver needs.
type ModelLookup interface {
	Model(ctx context.Context, id uuid.UUID) (*models.Model, error)
	AssemblyTree(ctx context.Context, id uuid.UUID) (*models.AssemblyTreeNode, error)
}

// Node is one resolved position in an assembly tree. An Unresolved node is a
// stub: the reference exists in the structure but the model record could not
// be fetched, so only the UUID is known.
type Node struct {
	UUID       uuid.UUID `json:"uuid"`
	Name       string    `json:"name,omitempty"`
	FolderID   uint32    `json:"folderId,omitempty"`
	FolderName string    `json:"folderName,omitempty"`
	IsAssembly bool      `json:"isAssembly,omitempty"`
	Unresolved bool      `json:"unresolved,omitempty"`
	Children   []*Node   `json:"children,omitempty"`
}

// Warning records one reference that was replaced by a stub node.
type Warning struct {
	ModelID uuid.UUID
	Reason  string
}

// Resolver walks assembly trees and resolves each reference to a model
// record. Lookups are memoized per Resolver, so resolving several roots that
// share parts does not repeat queries. Not safe for concurrent use.
type Resolver struct {
	client   ModelLookup
	folders  models.FolderList
	maxDepth int
	logger   *zap.Logger

	memo     map[uuid.UUID]*models.Model
	memoErr  map[uuid.UUID]error
	warnings []Warning
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets a logger for lookup warnings.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithFolders supplies the tenant folder list so nodes carry folder names.
func WithFolders(folders models.FolderList) ResolverOption {
	return func(r *Resolver) { r.folders = folders }
}

// WithMaxDepth overrides the depth bound.
func WithMaxDepth(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// NewResolver creates a resolver over the given lookup client.
func NewResolver(client ModelLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:   client,
		maxDepth: DefaultMaxDepth,
		memo:     make(map[uuid.UUID]*models.Model),
		memoErr:  make(map[uuid.UUID]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Warnings returns the stub substitutions recorded so far, in traversal order.
func (r *Resolver) Warnings() []Warning { return r.warnings }

// frame is one pending position in the explicit traversal stack.
type frame struct {
	wire   models.AssemblyTreeNode
	parent *frame
	attach *Node
	depth  int
}

// Resolve fetches and resolves the assembly tree rooted at rootID. A root
// that cannot be resolved returns ErrResolution; structural problems return
// ErrStructure. Unresolvable children become stub nodes and are recorded as
// warnings.
func (r *Resolver) Resolve(ctx context.Context, rootID uuid.UUID) (*Node, error) {
	rootModel, err := r.lookup(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("%w: root %s: %v", ErrResolution, rootID, err)
	}

	rootWire := models.AssemblyTreeNode{ModelID: rootID}
	if rootModel.IsAssembly {
		tree, err := r.client.AssemblyTree(ctx, rootID)
		if err != nil {
			return nil, fmt.Errorf("%w: root tree %s: %v", ErrResolution, rootID, err)
		}
		rootWire = *tree
	}

	var root *Node
	stack := []*frame{{wire: rootWire, depth: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > r.maxDepth {
			return nil, fmt.Errorf("%w: depth %d exceeds bound %d at %s",
				ErrStructure, f.depth, r.maxDepth, f.wire.ModelID)
		}
		for p := f.parent; p != nil; p = p.parent {
			if p.wire.ModelID == f.wire.ModelID {
				return nil, fmt.Errorf("%w: cycle through %s", ErrStructure, f.wire.ModelID)
			}
		}

		node := r.resolveRef(ctx, f.wire.ModelID)
		if f.attach == nil {
			root = node
		} else {
			f.attach.Children = append(f.attach.Children, node)
		}

		children := f.wire.Children
		if len(children) == 0 && !node.Unresolved && node.IsAssembly && f.depth > 0 {
			// Sub-assembly references arrive without their own subtree; fetch it.
			sub, err := r.client.AssemblyTree(ctx, f.wire.ModelID)
			if err != nil {
				r.warn(f.wire.ModelID, fmt.Sprintf("subtree fetch failed: %v", err))
			} else {
				children = sub.Children
			}
		}
		// Push reversed so pops preserve declared child order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, &frame{
				wire:   children[i],
				parent: f,
				attach: node,
				depth:  f.depth + 1,
			})
		}
	}
	return root, nil
}

// resolveRef turns one reference into a Node, substituting a stub when the
// model record cannot be fetched.
func (r *Resolver) resolveRef(ctx context.Context, id uuid.UUID) *Node {
	m, err := r.lookup(ctx, id)
	if err != nil {
		r.warn(id, err.Error())
		return &Node{UUID: id, Unresolved: true}
	}
	return &Node{
		UUID:       m.UUID,
		Name:       m.Name,
		FolderID:   m.FolderID,
		FolderName: r.folders.NameOf(m.FolderID),
		IsAssembly: m.IsAssembly,
	}
}

func (r *Resolver) lookup(ctx context.Context, id uuid.UUID) (*models.Model, error) {
	if m, ok := r.memo[id]; ok {
		return m, nil
	}
	if err, ok := r.memoErr[id]; ok {
		return nil, err
	}
	m, err := r.client.Model(ctx, id)
	if err != nil {
		r.memoErr[id] = err
		return nil, err
	}
	r.memo[id] = m
	return m, nil
}

func (r *Resolver) warn(id uuid.UUID, reason string) {
	r.warnings = append(r.warnings, Warning{ModelID: id, Reason: reason})
	if r.logger != nil {
		r.logger.Warn("unresolved assembly reference",
			zap.String("model", id.String()), zap.String("reason", reason))
	}
}

// Flatten returns the unique nodes of the tree in depth-first order with
// children visited in declared order. Stub nodes are included.
func Flatten(root *Node) []*Node {
	seen := make(map[uuid.UUID]bool)
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if !seen[n.UUID] {
			seen[n.UUID] = true
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// BOMLine is one entry of a flattened bill of materials.
type BOMLine struct {
	Node  *Node `json:"node"`
	Count int   `json:"count"`
}

// BOM returns the tree's unique parts with occurrence counts, in first-seen
// depth-first order. The root itself is excluded.
func BOM(root *Node) []BOMLine {
	index := make(map[uuid.UUID]int)
	var out []BOMLine
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			if i, ok := index[c.UUID]; ok {
				out[i].Count++
			} else {
				index[c.UUID] = len(out)
				out = append(out, BOMLine{Node: c, Count: 1})
			}
			walk(c)
		}
	}
	walk(root)
	return out
}
