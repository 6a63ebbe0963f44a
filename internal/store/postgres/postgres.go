package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"salesdesk/internal/domain"
	"salesdesk/internal/store"
	"salesdesk/internal/store/postgres/migrations"
	"salesdesk/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveReceipt(ctx context.Context, storeID string, receipt domain.Receipt) error {
	if !store.ValidReceipt(receipt) {
		return store.ErrInvalidRecord
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (
			store_id, kind, sale_id, issued_by_id, counterparty_id, sale_date, status, total_sum, payload, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (store_id, kind, sale_id)
		DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload, archived_at = now()
	`, storeID, string(receipt.Kind), receipt.SaleID, receipt.IssuedByID, receipt.CounterpartyID,
		receipt.Date, string(receipt.Status), receipt.TotalSum.StringFixed(2), payload, receiptCreatedAt(receipt))
	return err
}

func (s *Store) GetReceipt(ctx context.Context, storeID string, kind domain.ReceiptKind, saleID int64) (*domain.Receipt, error) {
	var payload []byte
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, status
		FROM receipts
		WHERE store_id = $1 AND kind = $2 AND sale_id = $3
	`, storeID, string(kind), saleID).Scan(&payload, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return decodeReceipt(payload, status)
}

func (s *Store) ListReceipts(ctx context.Context, storeID string, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	clauses := []string{"store_id = $1"}
	args := []any{storeID}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.ActorID > 0 {
		args = append(args, filter.ActorID)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(issued_by_id = $%d OR counterparty_id = $%d)", n, n))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.FromDate != "" {
		add("sale_date >= $%d", filter.FromDate)
	}
	if filter.ToDate != "" {
		add("sale_date <= $%d", filter.ToDate)
	}
	args = append(args, filter.EffectiveLimit())

	query := fmt.Sprintf(`
		SELECT payload, status
		FROM receipts
		WHERE %s
		ORDER BY created_at DESC, sale_id DESC
		LIMIT $%d
	`, strings.Join(clauses, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 32)
	for rows.Next() {
		var payload []byte
		var status string
		if err := rows.Scan(&payload, &status); err != nil {
			return nil, err
		}
		receipt, err := decodeReceipt(payload, status)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (s *Store) UpdateReturnStatus(ctx context.Context, storeID string, saleID int64, status domain.ReturnStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE receipts
		SET status = $4, archived_at = now()
		WHERE store_id = $1 AND kind = $2 AND sale_id = $3
	`, storeID, string(domain.ReceiptReturn), saleID, string(status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.StoreID, entry.ActorID, entry.ActorName, string(entry.ActorRole), entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var role string
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorID, &entry.ActorName, &role, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ActorRole = domain.Role(role)
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func decodeReceipt(payload []byte, status string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	receipt.Status = domain.ReturnStatus(status)
	return &receipt, nil
}

func receiptCreatedAt(r domain.Receipt) time.Time {
	if r.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.CreatedAt.UTC()
}
