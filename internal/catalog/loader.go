package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"salesdesk/internal/cache"
	"salesdesk/internal/domain"
)

// Source is the slice of the backend client the loader reads from.
type Source interface {
	ListProducts(ctx context.Context, token string) ([]domain.Product, error)
	ListWarehouses(ctx context.Context, token string) ([]domain.Warehouse, error)
	ListStock(ctx context.Context, token string) ([]domain.StockRecord, error)
	ListAccounts(ctx context.Context, token string) ([]domain.Account, error)
}

type Loader struct {
	source Source
	cache  cache.SnapshotCache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewLoader(source Source, snapshotCache cache.SnapshotCache, ttl time.Duration, logger *zap.Logger) *Loader {
	if snapshotCache == nil {
		snapshotCache = cache.NoopSnapshotCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source: source,
		cache:  snapshotCache,
		ttl:    ttl,
		logger: logger.Named("catalog"),
		now:    time.Now,
	}
}

// Load returns the actor's snapshot. The four collections are fetched
// concurrently; if any fetch fails the whole load fails and nothing is cached.
func (l *Loader) Load(ctx context.Context, actor domain.Actor) (*Snapshot, error) {
	if !actor.Role.Valid() {
		return nil, fmt.Errorf("load catalog: %w", domain.ErrForbidden)
	}

	key := cache.Key(actor.Key())
	if entry, ok, err := l.cache.Get(ctx, key); err != nil {
		l.logger.Warn("snapshot cache read failed", zap.String("actor", actor.Key()), zap.Error(err))
	} else if ok {
		return NewSnapshot(entry.Products, entry.Accounts, entry.Warehouses, entry.LoadedAt), nil
	}

	var (
		products   []domain.Product
		warehouses []domain.Warehouse
		stock      []domain.StockRecord
		accounts   []domain.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = l.source.ListProducts(gctx, actor.Token)
		return err
	})
	g.Go(func() (err error) {
		warehouses, err = l.source.ListWarehouses(gctx, actor.Token)
		return err
	})
	g.Go(func() (err error) {
		stock, err = l.source.ListStock(gctx, actor.Token)
		return err
	})
	g.Go(func() (err error) {
		accounts, err = l.source.ListAccounts(gctx, actor.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	visible := VisibleWarehouses(actor, warehouses)
	entry := &cache.Entry{
		Products:   JoinStock(products, stock, visible),
		Accounts:   VisibleCounterparties(actor, accounts),
		Warehouses: visible,
		LoadedAt:   l.now().UTC(),
	}

	if err := l.cache.Set(ctx, key, entry, l.ttl); err != nil {
		l.logger.Warn("snapshot cache write failed", zap.String("actor", actor.Key()), zap.Error(err))
	}

	l.logger.Debug("snapshot loaded",
		zap.String("actor", actor.Key()),
		zap.Int("products", len(entry.Products)),
		zap.Int("counterparties", len(entry.Accounts)),
		zap.Int("warehouses", len(entry.Warehouses)),
	)
	return NewSnapshot(entry.Products, entry.Accounts, entry.Warehouses, entry.LoadedAt), nil
}

// Invalidate drops the actor's cached snapshot so the next Load refetches.
func (l *Loader) Invalidate(ctx context.Context, actor domain.Actor) error {
	return l.cache.Delete(ctx, cache.Key(actor.Key()))
}

// VisibleWarehouses keeps the warehouses the actor may sell from: all of them
// for admins, only the ones they are responsible for otherwise.
func VisibleWarehouses(actor domain.Actor, all []domain.Warehouse) []domain.Warehouse {
	out := make([]domain.Warehouse, 0, len(all))
	for _, w := range all {
		if actor.Role == domain.RoleAdmin || w.ResponsibleID == actor.ID {
			out = append(out, w)
		}
	}
	return out
}

// VisibleCounterparties applies the per-role account rules: admins sell to
// dealers, dealers to the shops they created, shops only see themselves.
func VisibleCounterparties(actor domain.Actor, all []domain.Account) []domain.Account {
	out := make([]domain.Account, 0)
	for _, a := range all {
		switch actor.Role {
		case domain.RoleAdmin:
			if a.Role == domain.RoleDealer {
				out = append(out, a)
			}
		case domain.RoleDealer:
			if a.Role == domain.RoleShop && a.CreatedBy == actor.ID {
				out = append(out, a)
			}
		case domain.RoleShop:
			if a.ID == actor.ID {
				out = append(out, a)
			}
		}
	}
	return out
}

// JoinStock sets each product's Stock to the quantity held across the given
// warehouses. Products without stock in scope are kept with Stock 0.
func JoinStock(products []domain.Product, stock []domain.StockRecord, warehouses []domain.Warehouse) []domain.Product {
	inScope := make(map[int64]struct{}, len(warehouses))
	for _, w := range warehouses {
		inScope[w.ID] = struct{}{}
	}
	qty := make(map[int64]int)
	for _, rec := range stock {
		if _, ok := inScope[rec.WarehouseID]; !ok || rec.Quantity <= 0 {
			continue
		}
		qty[rec.ProductID] += rec.Quantity
	}

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		p.Stock = qty[p.ID]
		out = append(out, p)
	}
	return out
}
