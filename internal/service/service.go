package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/cache"
	"rinkdesk/backend/internal/calendar"
	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/logger"
	"rinkdesk/backend/internal/sequence"
	"rinkdesk/backend/internal/store"
	"rinkdesk/backend/internal/telemetry"
	"rinkdesk/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultBranchID string
	Currency        string
	QuickTicketFee  decimal.Decimal
	// Counter overrides the repository as the ticket number source.
	Counter     sequence.Counter
	ReportCache cache.ReportCache
	ReportTTL   time.Duration
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

type Service struct {
	repo            store.Repository
	clock           *calendar.Normalizer
	issuer          *sequence.Issuer
	reports         cache.ReportCache
	reportTTL       time.Duration
	metrics         *telemetry.Metrics
	logger          *slog.Logger
	defaultBranchID string
	currency        string
	quickTicketFee  decimal.Decimal
}

func New(repo store.Repository, clock *calendar.Normalizer, opts Options) *Service {
	if opts.DefaultBranchID == "" {
		opts.DefaultBranchID = "main-branch"
	}
	if opts.Currency == "" {
		opts.Currency = domain.DefaultCurrency
	}
	if opts.Counter == nil {
		opts.Counter = repo
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if clock == nil {
		clock = calendar.NewNormalizer(time.UTC)
	}

	return &Service{
		repo:            repo,
		clock:           clock,
		issuer:          sequence.NewIssuer(opts.Counter, opts.Logger, opts.Metrics.TicketNumberFallback).WithClock(clock.Now),
		reports:         opts.ReportCache,
		reportTTL:       opts.ReportTTL,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		defaultBranchID: opts.DefaultBranchID,
		currency:        opts.Currency,
		quickTicketFee:  opts.QuickTicketFee,
	}
}

// Now is the service clock, in the venue timezone.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) DefaultBranchID() string {
	return s.defaultBranchID
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	if limit < 1 {
		limit = 100
	}

	// no date means the trailing 24 hours
	now := s.clock.Now()
	from, to := now.Add(-24*time.Hour), now.Add(time.Second)
	if strings.TrimSpace(date) != "" {
		parsed, err := s.clock.ParseDay(date)
		if err != nil {
			return nil, invalid("%v", err)
		}
		from, to = parsed, parsed.AddDate(0, 0, 1)
	}

	return s.repo.ListAuditLogs(ctx, branchID, from, to, limit)
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.logger)
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      branchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock.Now().UTC(),
	}); err != nil {
		s.log(ctx).WarnContext(ctx, "failed to write audit log", "action", action, "entity", entityType+"/"+entityID, "error", err)
	}
}

func (s *Service) invalidateReports(ctx context.Context, branchID string) {
	if err := s.reports.Invalidate(ctx, branchID); err != nil {
		s.log(ctx).WarnContext(ctx, "failed to invalidate report cache", "branch_id", branchID, "error", err)
	}
}

// authorizeBranch keeps staff inside their own branch. Admins and actors
// without a branch are unrestricted.
func authorizeBranch(ctx context.Context, branchID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "admin" || actor.BranchID == "" {
		return nil
	}
	if actor.BranchID != branchID {
		return fmt.Errorf("%w: branch %s is outside your branch", ErrForbidden, branchID)
	}
	return nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{store.ErrValidation}, args...)...)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}
