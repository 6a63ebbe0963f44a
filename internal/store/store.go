package store

import (
	"context"
	"errors"
	"time"

	"salesdesk/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// ReceiptFilter narrows ListReceipts. Zero values match everything; Limit
// defaults to 100.
type ReceiptFilter struct {
	Kind     domain.ReceiptKind
	ActorID  int64
	Status   domain.ReturnStatus
	FromDate string
	ToDate   string
	Limit    int
}

// Repository archives posted receipts and the audit trail. The backend stays
// the source of truth for sales; the archive lets receipts be re-exported
// without another round-trip.
type Repository interface {
	SaveReceipt(ctx context.Context, storeID string, receipt domain.Receipt) error
	GetReceipt(ctx context.Context, storeID string, kind domain.ReceiptKind, saleID int64) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, storeID string, filter ReceiptFilter) ([]domain.Receipt, error)
	UpdateReturnStatus(ctx context.Context, storeID string, saleID int64, status domain.ReturnStatus) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

func ValidReceipt(r domain.Receipt) bool {
	return r.Kind.Valid() && r.SaleID > 0
}

// Matches applies filter to r the same way the SQL store does.
func (f ReceiptFilter) Matches(r domain.Receipt) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.ActorID > 0 && r.IssuedByID != f.ActorID && r.CounterpartyID != f.ActorID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.FromDate != "" && r.Date < f.FromDate {
		return false
	}
	if f.ToDate != "" && r.Date > f.ToDate {
		return false
	}
	return true
}

func (f ReceiptFilter) EffectiveLimit() int {
	if f.Limit < 1 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}
