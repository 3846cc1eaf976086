package registry

import (
	"context"
	"fmt"

	"github.com/wenakita/CreatorVault-sub008/pkg/canonhash"
	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

type Store interface {
	UpsertVault(ctx context.Context, v domain.VaultConfig) (domain.VaultConfig, error)
	GetVaultByAddress(ctx context.Context, vault string) (*domain.VaultConfig, error)
	GetVaultByGroup(ctx context.Context, groupID string) (*domain.VaultConfig, error)
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
}

// Registry owns vault configuration. One chain id per deployment; configs for
// any other chain are rejected before they reach the store.
type Registry struct {
	Store   Store
	ChainID uint32
}

func New(st Store, chainID uint32) *Registry {
	return &Registry{Store: st, ChainID: chainID}
}

// UpsertVaultConfig validates the document, computes the canonical config
// hash, and persists it keyed by vault address (last-writer-wins). Every
// accepted upsert appends an audit row.
func (r *Registry) UpsertVaultConfig(ctx context.Context, cfg domain.VaultConfig, actorWallet string) (domain.VaultConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.VaultConfig{}, err
	}
	if cfg.ChainID != r.ChainID {
		return domain.VaultConfig{}, fmt.Errorf("%w: chain %d, deployment supports %d", domain.ErrUnsupportedChain, cfg.ChainID, r.ChainID)
	}

	hash, _, err := canonhash.SumObject(cfg.ConfigDocument())
	if err != nil {
		return domain.VaultConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	cfg.ConfigHash = hash

	stored, err := r.Store.UpsertVault(ctx, cfg)
	if err != nil {
		return domain.VaultConfig{}, err
	}
	_ = r.Store.AppendAudit(ctx, domain.AuditEntry{
		VaultAddress: cfg.VaultAddress,
		ActorWallet:  actor(actorWallet),
		EventType:    "config_upserted",
		Details: map[string]any{
			"config_hash":    stored.ConfigHash,
			"config_version": stored.ConfigVersion,
			"group_id":       stored.GroupID,
		},
	})
	return stored, nil
}

func (r *Registry) GetByVault(ctx context.Context, vault string) (*domain.VaultConfig, error) {
	return r.Store.GetVaultByAddress(ctx, vault)
}

func (r *Registry) GetByGroup(ctx context.Context, groupID string) (*domain.VaultConfig, error) {
	return r.Store.GetVaultByGroup(ctx, groupID)
}

// SetJoinLocked flips the lock flag through the hashing upsert so the stored
// hash always matches the stored config. Repeated identical calls change
// nothing but still append an audit row.
func (r *Registry) SetJoinLocked(ctx context.Context, vault string, locked bool, actorWallet string) error {
	cfg, err := r.Store.GetVaultByAddress(ctx, vault)
	if err != nil {
		return err
	}
	if cfg == nil {
		return domain.ErrVaultNotConfigured
	}
	if cfg.Gating.JoinLocked != locked {
		cfg.Gating.JoinLocked = locked
		hash, _, err := canonhash.SumObject(cfg.ConfigDocument())
		if err != nil {
			return err
		}
		cfg.ConfigHash = hash
		if _, err := r.Store.UpsertVault(ctx, *cfg); err != nil {
			return err
		}
	}
	event := "join_locked"
	if !locked {
		event = "join_unlocked"
	}
	return r.Store.AppendAudit(ctx, domain.AuditEntry{
		VaultAddress: vault,
		ActorWallet:  actor(actorWallet),
		EventType:    event,
	})
}

func actor(wallet string) *string {
	if wallet == "" {
		return nil
	}
	return &wallet
}
