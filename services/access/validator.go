package access

import (
	"context"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"go.uber.org/zap"
)

// Validator answers the two questions every tenant-scoped operation asks:
// does this user belong to this tenant, and does this resource belong to
// this tenant. Internally the answers distinguish forbidden from not found;
// the HTTP boundary collapses cross-tenant probes to not found so callers
// cannot enumerate foreign resources.
type Validator struct {
	memberships repositories.MembershipRepository
	stores      repositories.StoreSet
	cache       *MembershipCache
	logger      *zap.Logger
}

// NewValidator creates an access validator. cache may be nil.
func NewValidator(memberships repositories.MembershipRepository, stores repositories.StoreSet, cache *MembershipCache, logger *zap.Logger) *Validator {
	return &Validator{
		memberships: memberships,
		stores:      stores,
		cache:       cache,
		logger:      logger,
	}
}

// ValidateTenantAccess checks that the user holds an active membership in
// the tenant and returns it. Missing and suspended memberships both come
// back forbidden.
func (v *Validator) ValidateTenantAccess(ctx context.Context, userID, companyID string) (*models.Membership, error) {
	if userID == "" || companyID == "" {
		return nil, services.ErrNotTenantMember
	}

	if m := v.cache.Get(ctx, userID, companyID); m != nil {
		return m, nil
	}

	m, err := v.memberships.GetByUserAndCompany(ctx, userID, companyID)
	if err != nil {
		if services.IsNotFoundError(err) {
			v.logger.Debug("tenant access denied: no membership",
				zap.String("user_id", userID),
				zap.String("company_id", companyID))
			return nil, services.ErrNotTenantMember
		}
		return nil, err
	}

	if !m.IsActive() {
		v.logger.Debug("tenant access denied: membership not active",
			zap.String("user_id", userID),
			zap.String("company_id", companyID),
			zap.String("status", string(m.Status)))
		return nil, services.ErrNotTenantMember
	}

	v.cache.Set(ctx, m)
	return m, nil
}

// ValidateResourceTenant checks that the resource exists under the tenant
// and returns it. Unlike the scoped stores, this internal check keeps the
// two failure modes apart: a row that does not exist at all is not found,
// while a row owned by another tenant is wrong-tenant. The HTTP boundary
// maps the wrong-tenant signal back to not found before it leaves the
// process.
func (v *Validator) ValidateResourceTenant(ctx context.Context, companyID, table, resourceID string) (repositories.Record, error) {
	store, ok := v.stores[table]
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"unknown resource table: "+table, nil)
	}

	owner, err := store.TenantOf(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if owner != companyID {
		v.logger.Warn("resource belongs to another tenant",
			zap.String("table", table),
			zap.String("resource_id", resourceID),
			zap.String("expected", companyID))
		return nil, services.ErrWrongTenant
	}

	return store.GetByID(ctx, companyID, resourceID)
}

// ValidateResourceAccess verifies a nested resource chain: the child row
// must reference the parent through parentColumn and both must live under
// the tenant. The store evaluates the whole chain as one predicate, so a
// child re-parented or a parent moved mid-request cannot slip through.
// Any break in the chain reads as not found.
func (v *Validator) ValidateResourceAccess(ctx context.Context, companyID, childTable, childID, parentColumn, parentID string) error {
	store, ok := v.stores[childTable]
	if !ok {
		return services.NewDomainError(services.ErrorTypeValidation,
			"unknown resource table: "+childTable, nil)
	}

	linked, err := store.ValidateLineage(ctx, companyID, childID, parentColumn, parentID)
	if err != nil {
		return err
	}
	if !linked {
		return services.ErrRecordNotFound
	}
	return nil
}

// ValidateParent checks that a parent resource (a task's project, a
// comment's subject) exists under the tenant. Used for hierarchy checks
// before attaching children.
func (v *Validator) ValidateParent(ctx context.Context, companyID, parentTable, parentID string) error {
	store, ok := v.stores[parentTable]
	if !ok {
		return services.NewDomainError(services.ErrorTypeValidation,
			"unknown resource table: "+parentTable, nil)
	}
	owned, err := store.ValidateOwnership(ctx, companyID, parentID)
	if err != nil {
		return err
	}
	if !owned {
		return services.ErrRecordNotFound
	}
	return nil
}

// ValidateRecordTenant checks that a record already in hand carries the
// expected tenant. It guards payloads assembled outside the scoped stores
// before they are written, so a mismatch is a validation failure of the
// payload rather than an access decision.
func (v *Validator) ValidateRecordTenant(record repositories.Record, tenantColumn, companyID string) error {
	if tenantColumn == "" {
		tenantColumn = "company_id"
	}
	got, _ := record[tenantColumn].(string)
	if got != companyID {
		v.logger.Warn("record tenant mismatch",
			zap.String("expected", companyID),
			zap.String("column", tenantColumn))
		return services.ErrTenantMismatch
	}
	return nil
}
