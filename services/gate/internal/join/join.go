package join

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/wenakita/CreatorVault-sub008/pkg/announce"
	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/pkg/proof"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/eligibility"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/queue"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/registry"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/watch"
)

type AuditStore interface {
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
}

// Service runs the join flow: proof, config lookup, eligibility, then either
// an enqueued add_member action or a watch row.
type Service struct {
	Registry  *registry.Registry
	Evaluator *eligibility.Evaluator
	Queue     *queue.Queue
	Tracker   *watch.Tracker
	Nonces    proof.NonceStore
	Audit     AuditStore
	Announcer announce.Announcer
	NonceTTL  time.Duration
}

// Result is the outcome of one join attempt. Status is one of queued,
// watching, denied or verification_failed; Reads carries the raw evidence.
type Result struct {
	Status   string               `json:"status"`
	Reason   string               `json:"reason"`
	Wallet   string               `json:"wallet"`
	ActionID string               `json:"action_id,omitempty"`
	Reads    []eligibility.Result `json:"reads,omitempty"`
}

const (
	StatusQueued             = "queued"
	StatusWatching           = "watching"
	StatusDenied             = "denied"
	StatusVerificationFailed = "verification_failed"
)

// RequestNonce issues a fresh single-use nonce for a (vault, wallet) pair.
// The vault must exist so nonces cannot be farmed for arbitrary targets.
func (s *Service) RequestNonce(ctx context.Context, vault, wallet string) (string, time.Time, error) {
	cfg, err := s.Registry.GetByVault(ctx, vault)
	if err != nil {
		return "", time.Time{}, err
	}
	if cfg == nil {
		return "", time.Time{}, domain.ErrVaultNotConfigured
	}
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: wallet: %v", domain.ErrInvalidConfig, err)
	}
	ttl := s.NonceTTL
	if ttl <= 0 {
		ttl = proof.DefaultNonceTTL
	}
	nonce := "n_" + uuid.NewString()
	if err := s.Nonces.Issue(ctx, vault, wallet, nonce, ttl); err != nil {
		return "", time.Time{}, err
	}
	return nonce, time.Now().Add(ttl), nil
}

// Join authenticates and decides one join attempt.
func (s *Service) Join(ctx context.Context, vault, message, signature string) (Result, error) {
	cfg, err := s.Registry.GetByVault(ctx, vault)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return Result{}, domain.ErrVaultNotConfigured
	}

	wallet, err := proof.VerifyJoinProof(ctx, message, signature, vault, s.Nonces)
	if err != nil {
		_ = s.Audit.AppendAudit(ctx, domain.AuditEntry{
			VaultAddress: vault,
			EventType:    "join_proof_rejected",
			Details:      map[string]any{"error": err.Error()},
		})
		return Result{}, err
	}

	if cfg.Gating.JoinLocked {
		s.audit(ctx, vault, wallet, "join_denied", map[string]any{"reason": domain.ReasonJoinLocked})
		return Result{Status: StatusDenied, Reason: domain.ReasonJoinLocked, Wallet: wallet}, nil
	}

	if !cfg.Gating.Enabled || cfg.Gating.Mode == domain.GateNone {
		return s.admit(ctx, *cfg, wallet, domain.ReasonGatingDisabled, nil)
	}

	if cfg.Gating.Mode == domain.GateAllowlist {
		if cfg.Allowlisted(wallet) {
			return s.admit(ctx, *cfg, wallet, domain.ReasonAllowlisted, nil)
		}
		return s.watchIneligible(ctx, *cfg, wallet, domain.ReasonNotAllowlisted, nil)
	}

	mint, _, err := cfg.GatingMint()
	if err != nil {
		return Result{}, err
	}
	walletKey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return Result{}, fmt.Errorf("%w: wallet", proof.ErrInvalidProof)
	}

	outcome := s.Evaluator.CheckDouble(ctx, walletKey, mint, cfg.Gating.MinShares, cfg.Gating.FailClosed)
	if outcome.VerificationFailed {
		s.audit(ctx, vault, wallet, "join_verification_failed", map[string]any{
			"reason": outcome.Reason, "reads": outcome.Reads,
		})
		return Result{Status: StatusVerificationFailed, Reason: outcome.Reason, Wallet: wallet, Reads: outcome.Reads}, nil
	}
	if outcome.Admit {
		return s.admit(ctx, *cfg, wallet, outcome.Reason, outcome.Reads)
	}
	return s.watchIneligible(ctx, *cfg, wallet, outcome.Reason, outcome.Reads)
}

func (s *Service) admit(ctx context.Context, cfg domain.VaultConfig, wallet, reason string, reads []eligibility.Result) (Result, error) {
	actionID, err := s.Queue.Enqueue(ctx, cfg.VaultAddress, cfg.GroupID, domain.ActionAddMember,
		map[string]any{"wallet": wallet}, "join:"+cfg.VaultAddress+":"+wallet)
	if err != nil {
		return Result{}, err
	}
	if err := s.Tracker.MarkQueued(ctx, cfg.VaultAddress, wallet, actionID); err != nil {
		return Result{}, err
	}
	s.audit(ctx, cfg.VaultAddress, wallet, "join_admitted", map[string]any{
		"reason": reason, "action_id": actionID, "reads": reads,
	})
	res := Result{Status: StatusQueued, Reason: reason, Wallet: wallet, ActionID: actionID, Reads: reads}
	s.announce(ctx, cfg, res)
	return res, nil
}

// announce is best effort: a dead webhook must not disturb the decision.
func (s *Service) announce(ctx context.Context, cfg domain.VaultConfig, res Result) {
	if s.Announcer == nil || !cfg.Behavior.AnnounceJoins {
		return
	}
	_ = s.Announcer.Announce(ctx, announce.Event{
		VaultAddress: cfg.VaultAddress,
		GroupID:      cfg.GroupID,
		Wallet:       res.Wallet,
		Status:       res.Status,
		Reason:       res.Reason,
		ActionID:     res.ActionID,
	})
}

func (s *Service) watchIneligible(ctx context.Context, cfg domain.VaultConfig, wallet, reason string, reads []eligibility.Result) (Result, error) {
	if cfg.Behavior.WatchIneligible {
		if err := s.Tracker.WatchIneligible(ctx, cfg.VaultAddress, wallet, reason); err != nil {
			return Result{}, err
		}
		res := Result{Status: StatusWatching, Reason: reason, Wallet: wallet, Reads: reads}
		s.announce(ctx, cfg, res)
		return res, nil
	}
	s.audit(ctx, cfg.VaultAddress, wallet, "join_denied", map[string]any{"reason": reason, "reads": reads})
	return Result{Status: StatusDenied, Reason: reason, Wallet: wallet, Reads: reads}, nil
}

func (s *Service) audit(ctx context.Context, vault, wallet, event string, details map[string]any) {
	_ = s.Audit.AppendAudit(ctx, domain.AuditEntry{
		VaultAddress: vault,
		ActorWallet:  &wallet,
		EventType:    event,
		Details:      details,
	})
}
