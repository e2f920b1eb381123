package company

import (
	"context"
	"fmt"
)

// Hierarchy answers ancestor/descendant queries over the company forest.
// It is a read-only view over the projection and tolerates soft-deleted
// companies in the chain: a deleted ancestor still links its descendants.
type Hierarchy struct {
	store Store
}

// NewHierarchy builds the index over the given projection.
func NewHierarchy(store Store) *Hierarchy {
	return &Hierarchy{store: store}
}

// AncestorsOf returns company ids from the given company up to its root,
// inclusive of the starting company. Traversal fails with ErrCycleDetected
// if the parent chain revisits an id; it never loops forever.
func (h *Hierarchy) AncestorsOf(ctx context.Context, companyID string) ([]string, error) {
	var chain []string
	visited := make(map[string]struct{})

	current := companyID
	for current != "" {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: at %s", ErrCycleDetected, current)
		}
		visited[current] = struct{}{}

		c, err := h.store.Get(ctx, current)
		if err != nil {
			// The starting company must resolve; a dangling parent link
			// terminates the chain.
			if len(chain) == 0 {
				return nil, err
			}
			break
		}
		chain = append(chain, c.ID)
		current = c.ParentID
	}
	return chain, nil
}

// DescendantsOf returns every company whose ancestor chain includes
// companyID, excluding the company itself.
func (h *Hierarchy) DescendantsOf(ctx context.Context, companyID string) ([]Company, error) {
	all, err := h.store.List(ctx, true)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]Company, len(all))
	for _, c := range all {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}

	var out []Company
	queue := []string{companyID}
	visited := map[string]struct{}{companyID: {}}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if _, seen := visited[child.ID]; seen {
				return nil, fmt.Errorf("%w: at %s", ErrCycleDetected, child.ID)
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// ChildrenOf returns direct, non-deleted children only.
func (h *Hierarchy) ChildrenOf(ctx context.Context, companyID string) ([]Company, error) {
	return h.store.ChildrenOf(ctx, companyID)
}
