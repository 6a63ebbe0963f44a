package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"salesdesk/internal/domain"
	"salesdesk/internal/store"
	"salesdesk/internal/xid"
)

type receiptKey struct {
	storeID string
	kind    domain.ReceiptKind
	saleID  int64
}

type Store struct {
	mu        sync.RWMutex
	receipts  map[receiptKey]domain.Receipt
	auditLogs []domain.AuditLog
}

func New() *Store {
	return &Store{receipts: make(map[receiptKey]domain.Receipt)}
}

func (s *Store) SaveReceipt(_ context.Context, storeID string, receipt domain.Receipt) error {
	if !store.ValidReceipt(receipt) {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receiptKey{storeID: storeID, kind: receipt.Kind, saleID: receipt.SaleID}] = cloneReceipt(receipt)
	return nil
}

func (s *Store) GetReceipt(_ context.Context, storeID string, kind domain.ReceiptKind, saleID int64) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[receiptKey{storeID: storeID, kind: kind, saleID: saleID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneReceipt(receipt)
	return &out, nil
}

func (s *Store) ListReceipts(_ context.Context, storeID string, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	s.mu.RLock()
	out := make([]domain.Receipt, 0)
	for key, receipt := range s.receipts {
		if key.storeID != storeID || !filter.Matches(receipt) {
			continue
		}
		out = append(out, cloneReceipt(receipt))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SaleID > out[j].SaleID
	})
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateReturnStatus(_ context.Context, storeID string, saleID int64, status domain.ReturnStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receiptKey{storeID: storeID, kind: domain.ReceiptReturn, saleID: saleID}
	receipt, ok := s.receipts[key]
	if !ok {
		return store.ErrNotFound
	}
	receipt.Status = status
	s.receipts[key] = receipt
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.auditLogs = append(s.auditLogs, entry)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID || entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func cloneReceipt(r domain.Receipt) domain.Receipt {
	r.Lines = append([]domain.SaleLine(nil), r.Lines...)
	return r
}
