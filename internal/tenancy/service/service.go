package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesapos/mesa-backend/internal/tenancy/repository"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

var validTenantStatuses = map[string]bool{
	"ACTIVE":    true,
	"SUSPENDED": true,
	"CANCELLED": true,
}

var validRoles = map[string]bool{
	authz.RoleAdmin:        true,
	authz.RoleManager:      true,
	authz.RoleCashier:      true,
	authz.RoleWaiter:       true,
	authz.RoleKitchenStaff: true,
}

// Service handles tenant, site and staff administration.
type Service struct {
	repo   *repository.Repository
	logger *logger.Logger
}

// New creates a tenancy service.
func New(repo *repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log.WithComponent("tenancy")}
}

// CreateTenantRequest creates a new business account.
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
	Plan string `json:"plan" validate:"omitempty,oneof=BASIC PRO"`
}

// CreateTenant provisions a new tenant. Super-admin only.
func (s *Service) CreateTenant(ctx context.Context, req *CreateTenantRequest) (*repository.Tenant, error) {
	plan := req.Plan
	if plan == "" {
		plan = "BASIC"
	}
	t, err := s.repo.CreateTenant(ctx, req.Name, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", t.ID).Str("name", t.Name).Msg("tenant created")
	return t, nil
}

// ListTenants lists all tenants. Super-admin only.
func (s *Service) ListTenants(ctx context.Context) ([]repository.Tenant, error) {
	return s.repo.ListTenants(ctx)
}

// SetTenantStatus suspends, cancels or reactivates a tenant.
func (s *Service) SetTenantStatus(ctx context.Context, tenantID, status string) error {
	if !validTenantStatuses[status] {
		return errors.ValidationMsg("unknown tenant status")
	}
	if err := s.repo.SetTenantStatus(ctx, tenantID, status); err != nil {
		return err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("status", status).Msg("tenant status changed")
	return nil
}

// CreateSiteRequest adds a location to the caller's tenant.
type CreateSiteRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

// CreateSite adds a site to the caller's tenant.
func (s *Service) CreateSite(ctx context.Context, req *CreateSiteRequest) (*repository.Site, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	tz := req.Timezone
	if tz == "" {
		tz = "Europe/Lisbon"
	}
	return s.repo.CreateSite(ctx, tenantID, req.Name, tz)
}

// ListSites lists the caller's sites.
func (s *Service) ListSites(ctx context.Context) ([]repository.Site, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListSites(ctx, tenantID)
}

// CreateUserRequest adds a staff account to the caller's tenant.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

// CreateUser adds a staff account. The SUPER_ADMIN role can only be
// granted through platform provisioning, never through this endpoint.
func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) (*repository.StaffUser, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if !validRoles[req.Role] {
		return nil, errors.ValidationMsg("unknown or unassignable role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	user, err := s.repo.CreateUser(ctx, &tenantID, req.Username, string(hash), req.Role)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("staff user created")
	return user, nil
}

// ListUsers lists the caller's staff.
func (s *Service) ListUsers(ctx context.Context) ([]repository.StaffUser, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListUsers(ctx, tenantID)
}

// SetUserStatus activates or deactivates a staff account.
func (s *Service) SetUserStatus(ctx context.Context, userID, status string, version int64) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.Unauthenticated("tenant context required")
	}
	if status != authz.StatusActive && status != authz.StatusInactive {
		return errors.ValidationMsg("unknown user status")
	}
	return s.repo.UpdateUserStatus(ctx, tenantID, userID, status, version)
}
