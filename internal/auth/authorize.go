package auth

import "context"

// Options enumerate how an operation is gated. They are passed explicitly at
// the start of every operation handler; there is no per-route metadata.
type Options struct {
	// AllowRoot lets a Root identity pass immediately, bypassing the
	// permission table entirely.
	AllowRoot bool

	// MinRole is the minimum role strength required. The zero value means
	// no grant-based path exists: the operation is Root-only.
	MinRole Role

	// InheritFromAncestors widens the candidate set to the whole ancestor
	// chain of the company; a sufficient grant anywhere on the chain allows.
	InheritFromAncestors bool

	// RequireAbsolute switches role comparison from ">= MinRole" to exact
	// equality with MinRole.
	RequireAbsolute bool
}

// AncestorResolver walks the company hierarchy from a company up to its root,
// inclusive of the starting company.
type AncestorResolver interface {
	AncestorsOf(ctx context.Context, companyID string) ([]string, error)
}

// Engine is the single authorization decision point for company-scoped
// operations. Decisions are evaluated against a snapshot of the permission
// table at invocation time; a concurrent revocation does not retroactively
// invalidate an in-flight allow.
type Engine struct {
	grants    GrantStore
	ancestors AncestorResolver
}

// NewEngine constructs the decision engine.
func NewEngine(grants GrantStore, ancestors AncestorResolver) *Engine {
	return &Engine{grants: grants, ancestors: ancestors}
}

// Authorize answers allow/deny for ident acting on companyID. A deny is the
// normal negative outcome, not an error; the error return is reserved for
// store failures and hierarchy integrity faults.
func (e *Engine) Authorize(ctx context.Context, ident Identity, companyID string, opts Options) (bool, error) {
	if opts.AllowRoot && ident.Root {
		return true, nil
	}
	if ident.UserID == "" {
		return false, nil
	}
	if opts.MinRole == 0 {
		// Root-only operation and the caller is not Root.
		return false, nil
	}

	candidates := []string{companyID}
	if opts.InheritFromAncestors {
		chain, err := e.ancestors.AncestorsOf(ctx, companyID)
		if err != nil {
			return false, err
		}
		candidates = chain
	}

	grants, err := e.grants.GrantsFor(ctx, ident.UserID, candidates)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if opts.RequireAbsolute {
			if g.Role == opts.MinRole {
				return true, nil
			}
			continue
		}
		if g.Role >= opts.MinRole {
			return true, nil
		}
	}
	return false, nil
}
