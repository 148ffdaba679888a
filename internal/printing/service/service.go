package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mesapos/mesa-backend/internal/printing/domain"
	"github.com/mesapos/mesa-backend/internal/printing/repository"
	"github.com/mesapos/mesa-backend/internal/printing/transmit"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// sweepBatchSize bounds one dispatcher sweep pass.
const sweepBatchSize = 100

// Service routes, renders and dispatches kitchen print jobs.
type Service struct {
	db              *database.DB
	repo            *repository.Repository
	transmitter     transmit.Transmitter
	transmitTimeout time.Duration
	logger          *logger.Logger
}

// New creates a printing service.
func New(db *database.DB, repo *repository.Repository, transmitter transmit.Transmitter, transmitTimeout time.Duration, log *logger.Logger) *Service {
	if transmitTimeout <= 0 {
		transmitTimeout = 10 * time.Second
	}
	return &Service{
		db:              db,
		repo:            repo,
		transmitter:     transmitter,
		transmitTimeout: transmitTimeout,
		logger:          log.WithComponent("printing"),
	}
}

// PrinterRequest creates a printer at a site.
type PrinterRequest struct {
	SiteID string `json:"site_id" validate:"required,uuid"`
	Name   string `json:"name" validate:"required,min=1,max=100"`
}

// CreatePrinter adds a printer in NORMAL status.
func (s *Service) CreatePrinter(ctx context.Context, req *PrinterRequest) (*repository.Printer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	printer := &repository.Printer{
		TenantID: tenantID,
		SiteID:   req.SiteID,
		Name:     req.Name,
		Status:   domain.PrinterNormal,
	}
	if err := s.repo.CreatePrinter(ctx, printer); err != nil {
		return nil, err
	}
	return printer, nil
}

// ListPrinters returns a site's printers.
func (s *Service) ListPrinters(ctx context.Context, siteID string) ([]repository.Printer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListPrinters(ctx, tenantID, siteID)
}

// StatusRequest changes a printer's routing status.
type StatusRequest struct {
	Status              string  `json:"status" validate:"required,oneof=NORMAL WAIT IGNORE REDIRECT"`
	RedirectToPrinterID *string `json:"redirect_to_printer_id" validate:"omitempty,uuid"`
}

// SetPrinterStatus reconfigures a printer. Redirects require the
// REDIRECT_PRINTER permission and a target whose chain does not loop
// back; cycles are rejected here, not at dispatch.
func (s *Service) SetPrinterStatus(ctx context.Context, printerID string, req *StatusRequest) (*repository.Printer, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}

	var redirectTo *string
	if req.Status == domain.PrinterRedirect {
		if err := authz.RequirePermission(actorFromContext(ctx), authz.PermRedirectPrinter); err != nil {
			return nil, err
		}
		if req.RedirectToPrinterID == nil {
			return nil, errors.BusinessRule(domain.ReasonRedirectMissing, "redirect requires a target printer")
		}
		if err := domain.CheckRedirect(printerID, *req.RedirectToPrinterID, s.nodeLookup(ctx, tenantID)); err != nil {
			return nil, err
		}
		redirectTo = req.RedirectToPrinterID
	}

	if err := s.repo.UpdatePrinterStatus(ctx, tenantID, printerID, req.Status, redirectTo); err != nil {
		return nil, err
	}
	return s.repo.GetPrinter(ctx, tenantID, printerID)
}

// RouteRequest binds a category to a printer at a site.
type RouteRequest struct {
	SiteID    string `json:"site_id" validate:"required,uuid"`
	Category  string `json:"category" validate:"required,min=1,max=50"`
	PrinterID string `json:"printer_id" validate:"required,uuid"`
}

// SetRoute binds a category to a printer, replacing any prior binding.
func (s *Service) SetRoute(ctx context.Context, req *RouteRequest) (*repository.Route, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if _, err := s.repo.GetPrinter(ctx, tenantID, req.PrinterID); err != nil {
		return nil, err
	}
	route := &repository.Route{
		TenantID:  tenantID,
		SiteID:    req.SiteID,
		Category:  req.Category,
		PrinterID: req.PrinterID,
	}
	if err := s.repo.UpsertRoute(ctx, route); err != nil {
		return nil, err
	}
	return route, nil
}

// ListRoutes returns a site's routing table.
func (s *Service) ListRoutes(ctx context.Context, siteID string) ([]repository.Route, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListRoutes(ctx, tenantID, siteID)
}

// ListJobsForOrder returns an order's print jobs.
func (s *Service) ListJobsForOrder(ctx context.Context, orderID string) ([]repository.Job, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListJobsForOrder(ctx, tenantID, orderID)
}

// Dispatch fans one confirmed order out to the kitchen: one job per
// (line, routed printer). Each job inserts independently so a dedupe
// collision on one line never blocks the others; collisions mean a
// re-delivered event and are skipped.
func (s *Service) Dispatch(ctx context.Context, data *messaging.OrderConfirmedEvent) error {
	lookup := s.nodeLookup(ctx, data.TenantID)

	for _, line := range data.Lines {
		route, err := s.repo.FindRoute(ctx, data.TenantID, data.SiteID, line.Category)
		if err != nil {
			return err
		}
		if route == nil {
			s.logger.Warn().
				Str("order_id", data.OrderID).
				Str("category", line.Category).
				Msg("no printer route for category, line not printed")
			continue
		}
		printer, err := s.repo.GetPrinter(ctx, data.TenantID, route.PrinterID)
		if err != nil {
			return err
		}
		resolution, err := domain.Resolve(printerNode(printer), lookup)
		if err != nil {
			return err
		}

		job := &repository.Job{
			TenantID:  data.TenantID,
			SiteID:    data.SiteID,
			OrderID:   data.OrderID,
			LineID:    line.LineID,
			PrinterID: resolution.PrinterID,
			DedupeKey: domain.DedupeKey(data.OrderID, line.LineID, resolution.PrinterID, data.ConfirmSeq),
			Content: domain.Ticket{
				TableNumber: data.TableNumber,
				ItemName:    line.ItemName,
				Quantity:    line.Quantity,
				Modifiers:   line.Modifiers,
				Notes:       line.Notes,
				ConfirmedAt: data.ConfirmedAt,
			}.Render(),
		}
		switch resolution.Action {
		case domain.ActionSkip:
			job.Status = domain.JobSkipped
		default:
			job.Status = domain.JobPending
		}

		err = s.repo.InsertJob(ctx, job)
		if errors.Code(err) == errors.CodeConflict {
			s.logger.Debug().
				Str("order_id", data.OrderID).
				Str("line_id", line.LineID).
				Msg("print job already created, skipping re-delivery")
			continue
		}
		if err != nil {
			return err
		}

		if resolution.Action == domain.ActionTransmit {
			s.transmitJob(ctx, job)
		}
	}
	return nil
}

// ReprintRequest re-sends an order's slips to a chosen printer.
type ReprintRequest struct {
	PrinterID string `json:"printer_id" validate:"required,uuid"`
}

// Reprint re-issues an order's printed content to the given printer.
// Each reprint carries a fresh nonce, so the dedupe index never blocks
// it. Requires the REPRINT_DOCUMENT permission.
func (s *Service) Reprint(ctx context.Context, orderID string, req *ReprintRequest) ([]repository.Job, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermReprintDocument); err != nil {
		return nil, err
	}

	printer, err := s.repo.GetPrinter(ctx, tenantID, req.PrinterID)
	if err != nil {
		return nil, err
	}
	resolution, err := domain.Resolve(printerNode(printer), s.nodeLookup(ctx, tenantID))
	if err != nil {
		return nil, err
	}

	originals, err := s.repo.ListJobsForOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	// Latest job per line wins; skipped lines were never meant to print.
	latest := make(map[string]repository.Job)
	for _, job := range originals {
		if job.Status == domain.JobSkipped {
			continue
		}
		latest[job.LineID] = job
	}
	if len(latest) == 0 {
		return nil, errors.NotFound("print jobs for order")
	}

	nonce := uuid.New().String()
	reprints := make([]repository.Job, 0, len(latest))
	for lineID, original := range latest {
		job := &repository.Job{
			TenantID:  tenantID,
			SiteID:    original.SiteID,
			OrderID:   orderID,
			LineID:    lineID,
			PrinterID: resolution.PrinterID,
			DedupeKey: domain.ReprintKey(orderID, lineID, resolution.PrinterID, nonce),
			Content:   original.Content,
		}
		switch resolution.Action {
		case domain.ActionSkip:
			job.Status = domain.JobSkipped
		default:
			job.Status = domain.JobPending
		}
		if err := s.repo.InsertJob(ctx, job); err != nil {
			return nil, err
		}
		if resolution.Action == domain.ActionTransmit {
			s.transmitJob(ctx, job)
		}
		reprints = append(reprints, *job)
	}
	return reprints, nil
}

// SweepPending retries jobs parked behind WAIT printers. Jobs whose
// printer turned IGNORE are closed as SKIPPED; NORMAL printers get a
// transmission attempt.
func (s *Service) SweepPending(ctx context.Context) error {
	jobs, err := s.repo.ListPendingJobs(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := &jobs[i]
		printer, err := s.repo.GetPrinter(ctx, job.TenantID, job.PrinterID)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("sweep could not load printer")
			continue
		}
		resolution, err := domain.Resolve(printerNode(printer), s.nodeLookup(ctx, job.TenantID))
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("sweep could not resolve printer")
			continue
		}

		switch resolution.Action {
		case domain.ActionWait:
			// Still parked.
		case domain.ActionSkip:
			if err := s.repo.MarkJob(ctx, job.TenantID, job.ID, domain.JobSkipped, nil, nil); err != nil {
				s.logger.Error().Err(err).Str("job_id", job.ID).Msg("sweep could not mark job skipped")
			}
		case domain.ActionTransmit:
			job.PrinterID = resolution.PrinterID
			s.transmitJob(ctx, job)
		}
	}
	return nil
}

// RunSweeper loops SweepPending until the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("print dispatcher sweep started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("print dispatcher sweep stopped")
			return
		case <-ticker.C:
			if err := s.SweepPending(ctx); err != nil {
				s.logger.Error().Err(err).Msg("print dispatcher sweep failed")
			}
		}
	}
}

// transmitJob hands the job to the driver and records the outcome.
func (s *Service) transmitJob(ctx context.Context, job *repository.Job) {
	transmitCtx, cancel := context.WithTimeout(ctx, s.transmitTimeout)
	defer cancel()

	if err := s.transmitter.Transmit(transmitCtx, job.PrinterID, job.Content); err != nil {
		msg := err.Error()
		if markErr := s.repo.MarkJob(ctx, job.TenantID, job.ID, domain.JobFailed, &msg, nil); markErr != nil {
			s.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("could not mark job failed")
		}
		job.Status = domain.JobFailed
		return
	}
	now := time.Now().UTC()
	if err := s.repo.MarkJob(ctx, job.TenantID, job.ID, domain.JobPrinted, nil, &now); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("could not mark job printed")
		return
	}
	job.Status = domain.JobPrinted
	job.PrintedAt = &now
}

// nodeLookup adapts the printer store to the routing walk.
func (s *Service) nodeLookup(ctx context.Context, tenantID string) func(id string) (*domain.Node, error) {
	return func(id string) (*domain.Node, error) {
		printer, err := s.repo.GetPrinter(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		return printerNode(printer), nil
	}
}

func printerNode(p *repository.Printer) *domain.Node {
	return &domain.Node{ID: p.ID, Status: p.Status, RedirectTo: p.RedirectToPrinterID}
}

// actorFromContext rebuilds the caller for permission checks. Tokens are
// only issued to ACTIVE users, so the status here reflects issue time;
// deactivation takes effect at the next refresh.
func actorFromContext(ctx context.Context) authz.Actor {
	principal, _ := tenant.FromContext(ctx)
	return authz.Actor{
		UserID: principal.UserID,
		Role:   principal.Role,
		Status: authz.StatusActive,
	}
}
