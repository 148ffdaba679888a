package service

import (
	"context"
	"fmt"
	"time"

	billingrepo "github.com/mesapos/mesa-backend/internal/billing/repository"
	"github.com/mesapos/mesa-backend/internal/saft/domain"
	"github.com/mesapos/mesa-backend/internal/saft/repository"
	tenancyrepo "github.com/mesapos/mesa-backend/internal/tenancy/repository"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// FiscalSource reads the fiscal documents an export covers.
type FiscalSource interface {
	ListInRange(ctx context.Context, tenantID string, from, to time.Time) ([]billingrepo.FiscalDocument, error)
}

// TenantDirectory resolves the exporting company.
type TenantDirectory interface {
	GetTenant(ctx context.Context, id string) (*tenancyrepo.Tenant, error)
}

// Service generates SAF-T PT extracts.
type Service struct {
	fiscal  FiscalSource
	tenants TenantDirectory
	audit   *repository.Repository
	now     func() time.Time
	logger  *logger.Logger
}

// New creates a SAF-T export service.
func New(fiscal FiscalSource, tenants TenantDirectory, audit *repository.Repository, log *logger.Logger) *Service {
	return &Service{
		fiscal:  fiscal,
		tenants: tenants,
		audit:   audit,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.WithComponent("saft"),
	}
}

// ExportRequest selects the covered period, inclusive of both dates.
type ExportRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// Export renders the tenant's fiscal documents issued in the period as a
// SAF-T PT audit file and records the run in the audit trail.
func (s *Service) Export(ctx context.Context, req *ExportRequest) ([]byte, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		return nil, errors.ValidationMsg("from must be a date (YYYY-MM-DD)")
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		return nil, errors.ValidationMsg("to must be a date (YYYY-MM-DD)")
	}
	if !to.After(from) {
		return nil, errors.ValidationMsg("to must be after from")
	}
	// The stored window is half-open; the day named by "to" is included.
	until := to.AddDate(0, 0, 1)

	company, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	docs, err := s.fiscal.ListInRange(ctx, tenantID, from, until)
	if err != nil {
		return nil, err
	}

	file := domain.Build(company.ID, company.Name, from, until, s.now(), docs)
	data, err := file.Encode()
	if err != nil {
		return nil, err
	}

	entry := &repository.AuditEntry{
		TenantID: tenantID,
		Action:   "SAFT_EXPORT",
		Resource: "fiscal_documents",
		Detail:   fmt.Sprintf("period %s..%s, %d documents", req.From, req.To, len(docs)),
	}
	if userID := tenant.UserID(ctx); userID != "" {
		entry.UserID = &userID
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Int("documents", len(docs)).
		Msg("audit file exported")
	return data, nil
}

// AuditTrail returns the tenant's most recent audit entries.
func (s *Service) AuditTrail(ctx context.Context, limit int) ([]repository.AuditEntry, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audit.ListForTenant(ctx, tenantID, limit)
}
