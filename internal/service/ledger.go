package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"salesdesk/internal/backend"
	"salesdesk/internal/catalog"
	"salesdesk/internal/domain"
	"salesdesk/internal/events"
	"salesdesk/internal/report"
	"salesdesk/internal/xid"
)

func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.ListPayments(ctx, actor.Token)
}

// RecordPayment registers money received from one of the caller's visible
// counterparties.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	const op = "payment.create"

	snap, actor, err := s.currentSnapshot(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	if actor.Role == domain.RoleShop {
		return domain.Payment{}, fmt.Errorf("%s: %w", op, domain.ErrForbidden)
	}
	if !req.Amount.IsPositive() {
		return domain.Payment{}, domain.NewValidationError(op, domain.FieldAmount, "amount must be positive")
	}
	if _, ok := snap.Account(req.CounterpartyID); !ok {
		return domain.Payment{}, domain.NewValidationError(op, domain.FieldCounterparty, fmt.Sprintf("counterparty #%d is not available", req.CounterpartyID))
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.now().Format(domain.DateLayout)
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.Payment{}, domain.NewValidationError(op, domain.FieldDate, "date must be YYYY-MM-DD")
	}

	startedAt := time.Now()
	payment, err := s.backend.CreatePayment(ctx, actor.Token, xid.New("pay"), backend.PaymentInput{
		CounterpartyID: req.CounterpartyID,
		Amount:         req.Amount,
		Date:           date,
		Note:           strings.TrimSpace(req.Note),
	})
	s.metrics.ObserveBackend("payments.create", time.Since(startedAt), err)
	if err != nil {
		return domain.Payment{}, err
	}

	if evt, err := events.New(events.SubjectPaymentRecorded, s.storeID, actor, payment, s.now()); err == nil {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn("publish event failed", zap.String("subject", evt.Subject), zap.Error(err))
		}
	}
	s.logAudit(ctx, "payment_record", "payment", fmt.Sprint(payment.ID),
		fmt.Sprintf("counterparty=%d,amount=%s", req.CounterpartyID, req.Amount.StringFixed(2)))
	return payment, nil
}

// Balances reports what every visible counterparty owes.
func (s *Service) Balances(ctx context.Context) ([]domain.Balance, error) {
	snap, actor, err := s.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sales    []domain.Sale
		returns  []domain.DealerReturnRequest
		payments []domain.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.backend.ListSales(gctx, actor.Token, backend.SaleFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		returns, err = s.backend.ListReturnRequests(gctx, actor.Token, domain.ReturnApproved)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.backend.ListPayments(gctx, actor.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}

	return report.Balances(snap.Accounts(), sales, returns, payments), nil
}

// SalesReport aggregates the caller's sales over [from, to].
func (s *Service) SalesReport(ctx context.Context, from string, to string) (domain.SalesReport, error) {
	snap, actor, err := s.currentSnapshot(ctx)
	if err != nil {
		return domain.SalesReport{}, err
	}
	from, to, err = report.ParseRange(from, to, s.now())
	if err != nil {
		return domain.SalesReport{}, err
	}

	sales, err := s.backend.ListSales(ctx, actor.Token, backend.SaleFilter{From: from, To: to})
	if err != nil {
		return domain.SalesReport{}, fmt.Errorf("sales report: %w", err)
	}
	return report.Sales(from, to, sales, snap), nil
}

// ListAuditLogs returns one day of audit entries; admin only.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("audit.list: %w", domain.ErrForbidden)
	}
	if s.archive == nil {
		return []domain.AuditLog{}, nil
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, domain.NewValidationError("audit.list", domain.FieldDate, "date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	return s.archive.ListAuditLogs(ctx, s.storeID, from, from.Add(24*time.Hour), limit)
}

// currentSnapshot returns the caller's snapshot, loading it if needed, without
// holding the workspace lock afterwards. Snapshots are immutable.
func (s *Service) currentSnapshot(ctx context.Context) (*catalog.Snapshot, domain.Actor, error) {
	var (
		snap  *catalog.Snapshot
		actor domain.Actor
	)
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		if err := s.ensureSnapshot(ctx, ws); err != nil {
			return err
		}
		snap = ws.snapshot
		actor = ws.actor
		return nil
	})
	return snap, actor, err
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}

	s.logger.Info("audit",
		zap.String("action", action),
		zap.String("entity", entityType+"/"+entityID),
		zap.Int64("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("detail", detail),
	)
	if s.archive == nil {
		return
	}
	if err := s.archive.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StoreID:    s.storeID,
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}
