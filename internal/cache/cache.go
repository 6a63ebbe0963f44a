package cache

import (
	"context"
	"time"

	"salesdesk/internal/domain"
)

// Entry is what the catalog loader stores per actor. It holds the already
// role-filtered data, so a hit needs no further network calls.
type Entry struct {
	Products   []domain.Product   `json:"products"`
	Accounts   []domain.Account   `json:"accounts"`
	Warehouses []domain.Warehouse `json:"warehouses"`
	LoadedAt   time.Time          `json:"loaded_at"`
}

type SnapshotCache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, value *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*Entry, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ *Entry, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Delete(_ context.Context, _ string) error {
	return nil
}

// Key namespaces snapshot entries by actor workspace.
func Key(actorKey string) string {
	return "salesdesk:snapshot:" + actorKey
}
