package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/store"
)

const (
	testVault  = "So11111111111111111111111111111111111111112"
	testOwner  = "11111111111111111111111111111111"
	testCoin   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testShares = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

const deploymentChain = 30168

func validConfig() domain.VaultConfig {
	return domain.VaultConfig{
		VaultAddress:      testVault,
		ChainID:           deploymentChain,
		GroupID:           "grp_main",
		CoinAddress:       testCoin,
		OwnerAddress:      testOwner,
		ShareTokenAddress: testShares,
		Gating:            domain.Gating{Enabled: true, Mode: domain.GateShares, MinShares: 100, FailClosed: true},
		Behavior:          domain.Behavior{WatchIneligible: true},
	}
}

func newRegistry() (*Registry, *store.Memory) {
	mem := store.NewMemory()
	return New(mem, deploymentChain), mem
}

func TestUpsertComputesHashAndVersions(t *testing.T) {
	r, mem := newRegistry()
	ctx := context.Background()

	stored, err := r.UpsertVaultConfig(ctx, validConfig(), testOwner)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.ConfigHash == "" || stored.ConfigVersion != 1 {
		t.Fatalf("hash/version not set: %+v", stored)
	}

	again, err := r.UpsertVaultConfig(ctx, validConfig(), testOwner)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ConfigHash != stored.ConfigHash {
		t.Fatalf("identical config must hash identically")
	}
	if again.ConfigVersion != 2 {
		t.Fatalf("version must be monotonic, got %d", again.ConfigVersion)
	}

	changed := validConfig()
	changed.Gating.MinShares = 200
	third, err := r.UpsertVaultConfig(ctx, changed, testOwner)
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if third.ConfigHash == stored.ConfigHash {
		t.Fatalf("changed config must change the hash")
	}

	audit, _ := mem.ListAudit(ctx, testVault, 10)
	if len(audit) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(audit))
	}
	if audit[0].EventType != "config_upserted" {
		t.Fatalf("unexpected event %q", audit[0].EventType)
	}
}

func TestUpsertRejectsWrongChain(t *testing.T) {
	r, _ := newRegistry()
	cfg := validConfig()
	cfg.ChainID = 30101
	if _, err := r.UpsertVaultConfig(context.Background(), cfg, ""); !errors.Is(err, domain.ErrUnsupportedChain) {
		t.Fatalf("got %v, want ErrUnsupportedChain", err)
	}
}

func TestUpsertRejectsInvalidConfig(t *testing.T) {
	r, _ := newRegistry()
	cfg := validConfig()
	cfg.GroupID = ""
	if _, err := r.UpsertVaultConfig(context.Background(), cfg, ""); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestSetJoinLockedIdempotentWithAuditTrail(t *testing.T) {
	r, mem := newRegistry()
	ctx := context.Background()
	if _, err := r.UpsertVaultConfig(ctx, validConfig(), testOwner); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := r.SetJoinLocked(ctx, testVault, true, testOwner); err != nil {
			t.Fatalf("lock %d: %v", i, err)
		}
	}
	cfg, _ := r.GetByVault(ctx, testVault)
	if !cfg.Gating.JoinLocked {
		t.Fatalf("vault should be locked")
	}

	audit, _ := mem.ListAudit(ctx, testVault, 10)
	locks := 0
	for _, e := range audit {
		if e.EventType == "join_locked" {
			locks++
		}
	}
	if locks != 2 {
		t.Fatalf("each lock call audits, got %d rows", locks)
	}
}

func TestLookups(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	if _, err := r.UpsertVaultConfig(ctx, validConfig(), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	byGroup, err := r.GetByGroup(ctx, "grp_main")
	if err != nil || byGroup == nil || byGroup.VaultAddress != testVault {
		t.Fatalf("by group: %v %+v", err, byGroup)
	}
	missing, err := r.GetByVault(ctx, testOwner)
	if err != nil || missing != nil {
		t.Fatalf("absent vault: %v %+v", err, missing)
	}
}
