package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"salesdesk/internal/cache"
	"salesdesk/internal/config"
	"salesdesk/internal/events"
	"salesdesk/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123456"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "777777"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "876543"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "12"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected weak security config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestBuildersFallBackWithoutInfrastructure(t *testing.T) {
	logger := zap.NewNop()
	cfg := config.Config{}

	archive, closeArchive, err := buildArchive(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("expected in-memory archive, got %v", err)
	}
	if _, ok := archive.(*memory.Store); !ok || closeArchive != nil {
		t.Fatalf("expected in-memory archive without closer, got %T", archive)
	}

	snapshotCache, closeCache := buildSnapshotCache(context.Background(), cfg, logger)
	if _, ok := snapshotCache.(*cache.MemorySnapshotCache); !ok || closeCache != nil {
		t.Fatalf("expected in-process snapshot cache, got %T", snapshotCache)
	}

	if _, ok := buildPublisher(cfg, logger).(events.NoopPublisher); !ok {
		t.Fatalf("expected noop publisher when NATS_URL is unset")
	}
}
