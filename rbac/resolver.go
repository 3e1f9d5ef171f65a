package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/awe-platform/authcore/internal/cache"
)

// Catalog is the durable role-permission mapping the resolver reads. It is
// mutated only by administrative configuration and read constantly.
type Catalog interface {
	// RolePermissions returns the "resource:action" strings granted to
	// role. Unknown roles return an empty slice, not an error.
	RolePermissions(ctx context.Context, role Role) ([]string, error)
	// AllPermissions returns the full permission catalog, used to expand
	// the all:manage sentinel.
	AllPermissions(ctx context.Context) ([]string, error)
}

// Resolver unions per-role permission sets with a TTL-bounded cache in
// front of the catalog. Cache entries are keyed per role, so cache
// pressure is bounded by the number of distinct roles rather than the
// number of users. A permission revoked centrally can stay effective for
// already-cached roles until the TTL lapses; that staleness window is an
// accepted trade-off, not a bug.
type Resolver struct {
	catalog Catalog
	cache   *cache.TTL[[]string]
}

// NewResolver returns a Resolver caching up to maxRoles entries for ttl.
func NewResolver(catalog Catalog, maxRoles int, ttl time.Duration) *Resolver {
	return &Resolver{
		catalog: catalog,
		cache:   cache.New[[]string](maxRoles, ttl),
	}
}

// Resolve returns the union of the permission sets of roles, cache-first
// with at most one catalog query per uncached role. When the union
// contains all:manage the result short-circuits to the full catalog.
func (r *Resolver) Resolve(ctx context.Context, roles []Role) (PermissionSet, error) {
	granted := make(PermissionSet)

	for _, role := range roles {
		perms, ok := r.cache.Get(string(role))
		if !ok {
			fresh, err := r.catalog.RolePermissions(ctx, role)
			if err != nil {
				return nil, fmt.Errorf("resolve role %s: %w", role, err)
			}
			r.cache.Set(string(role), fresh)
			perms = fresh
		}
		for _, p := range perms {
			granted.Add(p)
		}
	}

	if granted.Contains(PermAllManage) {
		all, err := r.catalog.AllPermissions(ctx)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", PermAllManage, err)
		}
		return NewPermissionSet(all...), nil
	}

	return granted, nil
}

// Invalidate drops the cached entry for role, forcing the next Resolve to
// re-read the catalog. Used by administrative permission updates that
// cannot wait out the TTL.
func (r *Resolver) Invalidate(role Role) {
	r.cache.Delete(string(role))
}

// SetClock forwards to the underlying cache. Test hook.
func (r *Resolver) SetClock(now func() time.Time) {
	r.cache.SetClock(now)
}
