package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesapos/mesa-backend/internal/cashier/domain"
	"github.com/mesapos/mesa-backend/internal/cashier/repository"
	tenancyrepo "github.com/mesapos/mesa-backend/internal/tenancy/repository"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/money"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// SiteDirectory resolves a site's timezone for day closings.
type SiteDirectory interface {
	GetSite(ctx context.Context, tenantID, siteID string) (*tenancyrepo.Site, error)
}

// Service manages registers, sessions, movements and closings.
type Service struct {
	db     *database.DB
	repo   *repository.Repository
	sites  SiteDirectory
	logger *logger.Logger
}

// New creates a cashier service.
func New(db *database.DB, repo *repository.Repository, sites SiteDirectory, log *logger.Logger) *Service {
	return &Service{db: db, repo: repo, sites: sites, logger: log.WithComponent("cashier")}
}

// RegisterRequest creates a till at a site.
type RegisterRequest struct {
	SiteID string `json:"site_id" validate:"required,uuid"`
	Name   string `json:"name" validate:"required,min=1,max=100"`
}

// CreateRegister adds a till.
func (s *Service) CreateRegister(ctx context.Context, req *RegisterRequest) (*repository.Register, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	reg := &repository.Register{TenantID: tenantID, SiteID: req.SiteID, Name: req.Name}
	if err := s.repo.CreateRegister(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// ListRegisters returns a site's tills.
func (s *Service) ListRegisters(ctx context.Context, siteID string) ([]repository.Register, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListRegisters(ctx, tenantID, siteID)
}

// OpenSessionRequest opens a shift with a counted float.
type OpenSessionRequest struct {
	RegisterID    string `json:"register_id" validate:"required,uuid"`
	OpeningAmount string `json:"opening_amount" validate:"required"`
}

// OpenSession starts a shift: the session row and its OPENING movement
// commit together. The partial unique index makes a concurrent second
// open fail with CONFLICT.
func (s *Service) OpenSession(ctx context.Context, req *OpenSessionRequest) (*repository.Session, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	opening, err := decimal.NewFromString(req.OpeningAmount)
	if err != nil {
		return nil, errors.ValidationMsg("opening_amount must be a decimal")
	}
	if opening.IsNegative() {
		return nil, errors.ValidationMsg("opening_amount must not be negative")
	}
	userID := tenant.UserID(ctx)

	var session *repository.Session
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		register, err := s.repo.GetRegister(ctx, tenantID, req.RegisterID)
		if err != nil {
			return err
		}
		open, err := s.repo.FindOpenSession(ctx, tenantID, req.RegisterID)
		if err != nil {
			return err
		}
		if open != nil {
			return errors.BusinessRule(domain.ReasonSessionAlreadyOpen, "register already has an open session")
		}

		session = &repository.Session{
			TenantID:      tenantID,
			SiteID:        register.SiteID,
			RegisterID:    register.ID,
			OpenedBy:      userID,
			OpeningAmount: money.Round(opening),
		}
		if err := s.repo.InsertSession(ctx, session); err != nil {
			return err
		}
		return s.repo.InsertMovement(ctx, &repository.Movement{
			TenantID:     tenantID,
			SessionID:    session.ID,
			MovementType: domain.MovementOpening,
			Amount:       session.OpeningAmount,
			PerformedBy:  &userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SessionView is a session with its movement trail and live expectation.
type SessionView struct {
	repository.Session
	Movements []repository.Movement `json:"movements"`
	Expected  decimal.Decimal       `json:"expected"`
}

// GetSession loads a session with movements and the expected drawer
// amount as of now.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	session, err := s.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	movements, err := s.repo.ListMovements(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionView{
		Session:   *session,
		Movements: movements,
		Expected:  domain.ComputeExpected(session.OpeningAmount, movementAmounts(movements)),
	}, nil
}

// MovementRequest records a manual drawer adjustment.
type MovementRequest struct {
	MovementType string `json:"movement_type" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount       string `json:"amount" validate:"required"`
	Reference    string `json:"reference" validate:"max=300"`
}

// RecordMovement appends a DEPOSIT or WITHDRAWAL to an open session.
// Movements are append-only: corrections are compensating entries.
func (s *Service) RecordMovement(ctx context.Context, sessionID string, req *MovementRequest) (*repository.Movement, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, errors.ValidationMsg("amount must be a decimal")
	}
	if err := domain.ValidateManualMovement(req.MovementType, amount); err != nil {
		return nil, err
	}
	userID := tenant.UserID(ctx)

	var movement *repository.Movement
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		session, err := s.repo.GetSession(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.SessionOpen {
			return errors.BusinessRule(domain.ReasonSessionNotOpen, "session is closed")
		}
		movement = &repository.Movement{
			TenantID:     tenantID,
			SessionID:    sessionID,
			MovementType: req.MovementType,
			Amount:       money.Round(amount),
			Reference:    req.Reference,
			PerformedBy:  &userID,
		}
		return s.repo.InsertMovement(ctx, movement)
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// CloseSessionRequest closes a shift with the counted drawer amount.
type CloseSessionRequest struct {
	ActualAmount string `json:"actual_amount" validate:"required"`
	Version      int64  `json:"version" validate:"required,min=1"`
}

// CloseSession ends a shift: expected amount, variance, the CLOSING
// movement and the status flip commit atomically. Requires the
// CLOSE_CASH permission.
func (s *Service) CloseSession(ctx context.Context, sessionID string, req *CloseSessionRequest) (*repository.Session, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermCloseCash); err != nil {
		return nil, err
	}
	actual, err := decimal.NewFromString(req.ActualAmount)
	if err != nil {
		return nil, errors.ValidationMsg("actual_amount must be a decimal")
	}
	actual = money.Round(actual)
	userID := tenant.UserID(ctx)

	var session *repository.Session
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		session, err = s.repo.GetSession(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.SessionOpen {
			return errors.BusinessRule(domain.ReasonSessionNotOpen, "session is already closed")
		}
		movements, err := s.repo.ListMovements(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}

		expected := domain.ComputeExpected(session.OpeningAmount, movementAmounts(movements))
		variance := domain.Variance(expected, actual)
		now := time.Now().UTC()

		if err := s.repo.InsertMovement(ctx, &repository.Movement{
			TenantID:     tenantID,
			SessionID:    sessionID,
			MovementType: domain.MovementClosing,
			Amount:       actual,
			PerformedBy:  &userID,
		}); err != nil {
			return err
		}

		session.ClosedBy = &userID
		session.ExpectedAmount = &expected
		session.ActualAmount = &actual
		session.Variance = &variance
		session.ClosedAt = &now
		if err := s.repo.CloseSession(ctx, session); err != nil {
			return err
		}

		if !variance.IsZero() {
			s.logger.Warn().
				Str("session_id", sessionID).
				Str("variance", variance.StringFixed(2)).
				Msg("cash session closed with variance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ClosingRequest produces an immutable closing report.
type ClosingRequest struct {
	ClosingType string  `json:"closing_type" validate:"required,oneof=REGISTER DAY FINANCIAL_PERIOD"`
	SiteID      *string `json:"site_id" validate:"omitempty,uuid"`
	RegisterID  *string `json:"register_id" validate:"omitempty,uuid"`
	// Date selects the business day for DAY closings (YYYY-MM-DD in
	// the site's timezone).
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	// PeriodStart and PeriodEnd bound FINANCIAL_PERIOD and REGISTER
	// closings (RFC 3339).
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
}

// CreateClosing aggregates the closed sessions of a period into a report.
// DAY closings resolve the day boundaries in the site's timezone.
// Requires the CLOSE_CASH permission.
func (s *Service) CreateClosing(ctx context.Context, req *ClosingRequest) (*repository.Closing, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermCloseCash); err != nil {
		return nil, err
	}
	if !domain.ValidClosingType(req.ClosingType) || req.ClosingType == domain.ClosingSession {
		return nil, errors.ValidationMsg("unsupported closing type")
	}

	from, to, err := s.resolvePeriod(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	userID := tenant.UserID(ctx)

	var closing *repository.Closing
	err = s.db.WithTenant(ctx, func(ctx context.Context) error {
		sessions, err := s.repo.ListSessionsInRange(ctx, tenantID, req.SiteID, req.RegisterID, from, to)
		if err != nil {
			return err
		}
		totals, err := s.repo.SumMovementsInRange(ctx, tenantID, req.SiteID, req.RegisterID, from, to)
		if err != nil {
			return err
		}

		totalVariance := decimal.Zero
		for _, sess := range sessions {
			if sess.Variance != nil {
				totalVariance = totalVariance.Add(*sess.Variance)
			}
		}

		closing = &repository.Closing{
			TenantID:      tenantID,
			SiteID:        req.SiteID,
			RegisterID:    req.RegisterID,
			ClosingType:   req.ClosingType,
			PeriodStart:   from,
			PeriodEnd:     to,
			TotalSales:    totals.TotalSales,
			TotalRefunds:  totals.TotalRefunds,
			TotalVariance: money.Round(totalVariance),
			SessionCount:  len(sessions),
			CreatedBy:     userID,
		}
		return s.repo.InsertClosing(ctx, closing)
	})
	if err != nil {
		return nil, err
	}
	return closing, nil
}

// ListClosings returns the tenant's closing reports (?type= filter).
func (s *Service) ListClosings(ctx context.Context, closingType string) ([]repository.Closing, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	return s.repo.ListClosings(ctx, tenantID, closingType)
}

// ClosingReprint is a closing report regenerated from the stored record.
type ClosingReprint struct {
	Closing    *repository.Closing `json:"closing"`
	Content    string              `json:"content"`
	RenderedAt time.Time           `json:"rendered_at"`
}

// ReprintClosing regenerates the report of an existing closing. The
// stored record is the source of truth and is never recomputed. Requires
// the REPRINT_DOCUMENT permission.
func (s *Service) ReprintClosing(ctx context.Context, closingID string) (*ClosingReprint, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.Unauthenticated("tenant context required")
	}
	if err := authz.RequirePermission(actorFromContext(ctx), authz.PermReprintDocument); err != nil {
		return nil, err
	}

	closing, err := s.repo.GetClosing(ctx, tenantID, closingID)
	if err != nil {
		return nil, err
	}
	slip := domain.ClosingSlip{
		ClosingType:   closing.ClosingType,
		PeriodStart:   closing.PeriodStart,
		PeriodEnd:     closing.PeriodEnd,
		TotalSales:    closing.TotalSales,
		TotalRefunds:  closing.TotalRefunds,
		TotalVariance: closing.TotalVariance,
		SessionCount:  closing.SessionCount,
	}
	return &ClosingReprint{
		Closing:    closing,
		Content:    slip.Render(),
		RenderedAt: time.Now().UTC(),
	}, nil
}

// resolvePeriod turns a closing request into absolute period bounds. DAY
// closings span midnight to midnight in the site's timezone.
func (s *Service) resolvePeriod(ctx context.Context, tenantID string, req *ClosingRequest) (time.Time, time.Time, error) {
	if req.ClosingType == domain.ClosingDay {
		if req.SiteID == nil || req.Date == "" {
			return time.Time{}, time.Time{}, errors.ValidationMsg("day closings require site_id and date")
		}
		site, err := s.sites.GetSite(ctx, tenantID, *req.SiteID)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		loc, err := time.LoadLocation(site.Timezone)
		if err != nil {
			return time.Time{}, time.Time{}, errors.ValidationMsg("site has an invalid timezone")
		}
		day, err := time.ParseInLocation("2006-01-02", req.Date, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.ValidationMsg("date must be YYYY-MM-DD")
		}
		return day, day.AddDate(0, 0, 1), nil
	}

	if req.PeriodStart == nil || req.PeriodEnd == nil {
		return time.Time{}, time.Time{}, errors.ValidationMsg("period_start and period_end are required")
	}
	if !req.PeriodEnd.After(*req.PeriodStart) {
		return time.Time{}, time.Time{}, errors.ValidationMsg("period_end must be after period_start")
	}
	return *req.PeriodStart, *req.PeriodEnd, nil
}

func movementAmounts(movements []repository.Movement) []domain.MovementAmount {
	out := make([]domain.MovementAmount, 0, len(movements))
	for _, m := range movements {
		out = append(out, domain.MovementAmount{Type: m.MovementType, Amount: m.Amount})
	}
	return out
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
