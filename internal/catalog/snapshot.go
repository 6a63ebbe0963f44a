package catalog

import (
	"fmt"
	"time"

	"salesdesk/internal/domain"
)

// Snapshot is an immutable, role-filtered view of the catalog for one actor
// at one point in time. Cart and pipeline take it as an explicit argument.
type Snapshot struct {
	products   []domain.Product
	accounts   []domain.Account
	warehouses []domain.Warehouse
	loadedAt   time.Time

	productByID   map[int64]int
	accountByID   map[int64]int
	warehouseByID map[int64]int
}

func NewSnapshot(products []domain.Product, accounts []domain.Account, warehouses []domain.Warehouse, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		products:      append([]domain.Product(nil), products...),
		accounts:      append([]domain.Account(nil), accounts...),
		warehouses:    append([]domain.Warehouse(nil), warehouses...),
		loadedAt:      loadedAt,
		productByID:   make(map[int64]int, len(products)),
		accountByID:   make(map[int64]int, len(accounts)),
		warehouseByID: make(map[int64]int, len(warehouses)),
	}
	for i, p := range s.products {
		s.productByID[p.ID] = i
	}
	for i, a := range s.accounts {
		s.accountByID[a.ID] = i
	}
	for i, w := range s.warehouses {
		s.warehouseByID[w.ID] = i
	}
	return s
}

func (s *Snapshot) Product(id int64) (domain.Product, bool) {
	if s == nil {
		return domain.Product{}, false
	}
	i, ok := s.productByID[id]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i], true
}

func (s *Snapshot) Account(id int64) (domain.Account, bool) {
	if s == nil {
		return domain.Account{}, false
	}
	i, ok := s.accountByID[id]
	if !ok {
		return domain.Account{}, false
	}
	return s.accounts[i], true
}

func (s *Snapshot) Warehouse(id int64) (domain.Warehouse, bool) {
	if s == nil {
		return domain.Warehouse{}, false
	}
	i, ok := s.warehouseByID[id]
	if !ok {
		return domain.Warehouse{}, false
	}
	return s.warehouses[i], true
}

// ProductName never fails; unknown ids render as a placeholder.
func (s *Snapshot) ProductName(id int64) string {
	if p, ok := s.Product(id); ok {
		return p.Name
	}
	return fmt.Sprintf("Unknown product #%d", id)
}

func (s *Snapshot) AccountName(id int64) string {
	if a, ok := s.Account(id); ok {
		return a.DisplayName()
	}
	return fmt.Sprintf("Unknown counterparty #%d", id)
}

func (s *Snapshot) WarehouseName(id int64) string {
	if w, ok := s.Warehouse(id); ok {
		return w.Name
	}
	return fmt.Sprintf("Unknown warehouse #%d", id)
}

func (s *Snapshot) Products() []domain.Product {
	if s == nil {
		return nil
	}
	return append([]domain.Product(nil), s.products...)
}

func (s *Snapshot) Accounts() []domain.Account {
	if s == nil {
		return nil
	}
	return append([]domain.Account(nil), s.accounts...)
}

func (s *Snapshot) Warehouses() []domain.Warehouse {
	if s == nil {
		return nil
	}
	return append([]domain.Warehouse(nil), s.warehouses...)
}

func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

func (s *Snapshot) Response() domain.SnapshotResponse {
	return domain.SnapshotResponse{
		Products:   s.Products(),
		Accounts:   s.Accounts(),
		Warehouses: s.Warehouses(),
		LoadedAt:   s.LoadedAt(),
	}
}
