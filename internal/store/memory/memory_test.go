package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/internal/domain"
	"salesdesk/internal/store"
)

func receipt(kind domain.ReceiptKind, id int64, issuedBy int64, counterparty int64, date string) domain.Receipt {
	return domain.Receipt{
		Kind:           kind,
		SaleID:         id,
		Date:           date,
		CreatedAt:      time.Date(2026, 10, 19, 8, 0, int(id), 0, time.UTC),
		IssuedByID:     issuedBy,
		CounterpartyID: counterparty,
		Lines:          []domain.SaleLine{{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}},
		TotalSum:       decimal.NewFromInt(10),
	}
}

func TestReceiptArchive(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, r := range []domain.Receipt{
		receipt(domain.ReceiptSale, 1, 7, 9, "2026-10-18"),
		receipt(domain.ReceiptSale, 2, 7, 10, "2026-10-19"),
		receipt(domain.ReceiptReturn, 3, 9, 7, "2026-10-19"),
	} {
		if err := s.SaveReceipt(ctx, "main", r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.SaveReceipt(ctx, "other", receipt(domain.ReceiptSale, 1, 7, 9, "2026-10-18")); err != nil {
		t.Fatalf("save other store: %v", err)
	}

	got, err := s.GetReceipt(ctx, "main", domain.ReceiptSale, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Lines[0].Quantity = 99
	again, _ := s.GetReceipt(ctx, "main", domain.ReceiptSale, 2)
	if again.Lines[0].Quantity != 1 {
		t.Fatalf("archive must not share line slices")
	}

	if _, err := s.GetReceipt(ctx, "main", domain.ReceiptReturn, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, _ := s.ListReceipts(ctx, "main", store.ReceiptFilter{})
	if len(list) != 3 || list[0].SaleID != 3 {
		t.Fatalf("expected 3 receipts newest first, got %+v", list)
	}

	list, _ = s.ListReceipts(ctx, "main", store.ReceiptFilter{ActorID: 10})
	if len(list) != 1 || list[0].SaleID != 2 {
		t.Fatalf("expected counterparty filter to match sale 2, got %+v", list)
	}

	list, _ = s.ListReceipts(ctx, "main", store.ReceiptFilter{Kind: domain.ReceiptSale, FromDate: "2026-10-19"})
	if len(list) != 1 || list[0].SaleID != 2 {
		t.Fatalf("expected date filter to match sale 2, got %+v", list)
	}
}

func TestSaveReceiptRejectsInvalid(t *testing.T) {
	s := New()
	if err := s.SaveReceipt(context.Background(), "main", domain.Receipt{Kind: "bogus", SaleID: 1}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if err := s.SaveReceipt(context.Background(), "main", domain.Receipt{Kind: domain.ReceiptSale}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for missing id, got %v", err)
	}
}

func TestUpdateReturnStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := receipt(domain.ReceiptReturn, 5, 9, 7, "2026-10-19")
	r.Status = domain.ReturnPending
	_ = s.SaveReceipt(ctx, "main", r)

	if err := s.UpdateReturnStatus(ctx, "main", 5, domain.ReturnRejected); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetReceipt(ctx, "main", domain.ReceiptReturn, 5)
	if got.Status != domain.ReturnRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
	if err := s.UpdateReturnStatus(ctx, "main", 6, domain.ReturnApproved); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditLogWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	_ = s.CreateAuditLog(ctx, domain.AuditLog{StoreID: "main", Action: "old", CreatedAt: now.Add(-48 * time.Hour)})
	_ = s.CreateAuditLog(ctx, domain.AuditLog{StoreID: "main", Action: "sale.posted"})
	_ = s.CreateAuditLog(ctx, domain.AuditLog{StoreID: "other", Action: "sale.posted"})

	logs, err := s.ListAuditLogs(ctx, "main", now.Add(-time.Hour), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "sale.posted" || logs[0].ID == "" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}
