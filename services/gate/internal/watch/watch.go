package watch

import (
	"context"
	"time"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

// RecheckInterval is how far ahead a new watch row schedules its next check.
// The external watcher owns the actual cadence; this is only the hint it
// reads.
const RecheckInterval = 2 * time.Minute

type Store interface {
	GetJoinRequest(ctx context.Context, vault, wallet string) (*domain.JoinRequest, error)
	UpsertJoinRequest(ctx context.Context, jr domain.JoinRequest) (bool, error)
	SetJoinRequestStatus(ctx context.Context, vault, wallet string, status domain.JoinStatus, reason string) error
	ListDueJoinRequests(ctx context.Context, now time.Time, limit int) ([]domain.JoinRequest, error)
	GetAction(ctx context.Context, id string) (*domain.Action, error)
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
}

// Tracker maintains the per-(vault, wallet) join state machine.
type Tracker struct {
	Store Store
	now   func() time.Time
}

func New(st Store) *Tracker { return &Tracker{Store: st, now: time.Now} }

// WatchIneligible records an ineligible wallet for automatic re-evaluation.
// Rows currently queued or added are never overwritten.
func (t *Tracker) WatchIneligible(ctx context.Context, vault, wallet, reason string) error {
	now := t.now()
	applied, err := t.Store.UpsertJoinRequest(ctx, domain.JoinRequest{
		VaultAddress:  vault,
		Wallet:        wallet,
		Status:        domain.JoinWatching,
		Reason:        reason,
		LastCheckedAt: now,
		NextCheckAt:   now.Add(RecheckInterval),
	})
	if err != nil {
		return err
	}
	if applied {
		_ = t.Store.AppendAudit(ctx, domain.AuditEntry{
			VaultAddress: vault,
			ActorWallet:  &wallet,
			EventType:    "join_watching",
			Details:      map[string]any{"reason": reason},
		})
	}
	return nil
}

// MarkQueued links the pair to its enqueued action. Safe to call whether or
// not a watch row existed.
func (t *Tracker) MarkQueued(ctx context.Context, vault, wallet, actionID string) error {
	now := t.now()
	_, err := t.Store.UpsertJoinRequest(ctx, domain.JoinRequest{
		VaultAddress:  vault,
		Wallet:        wallet,
		Status:        domain.JoinQueued,
		Reason:        domain.ReasonEligible,
		ActionID:      actionID,
		LastCheckedAt: now,
	})
	return err
}

// Status returns the stored row with the derived display status: once the
// linked action has executed, the request reads as added whatever the raw row
// says.
func (t *Tracker) Status(ctx context.Context, vault, wallet string) (*domain.JoinRequest, error) {
	jr, err := t.Store.GetJoinRequest(ctx, vault, wallet)
	if err != nil || jr == nil {
		return jr, err
	}
	if jr.ActionID != "" {
		a, err := t.Store.GetAction(ctx, jr.ActionID)
		if err != nil {
			return nil, err
		}
		if a != nil {
			switch a.Status {
			case domain.ActionExecuted:
				jr.Status = domain.JoinAdded
			case domain.ActionFailed:
				jr.Status = domain.JoinFailed
			}
		}
	}
	return jr, nil
}

// Cancel terminates a request by admin command.
func (t *Tracker) Cancel(ctx context.Context, vault, wallet, actorWallet string) error {
	if err := t.Store.SetJoinRequestStatus(ctx, vault, wallet, domain.JoinCancelled, "cancelled"); err != nil {
		return err
	}
	return t.Store.AppendAudit(ctx, domain.AuditEntry{
		VaultAddress: vault,
		ActorWallet:  actor(actorWallet),
		EventType:    "join_cancelled",
		Details:      map[string]any{"wallet": wallet},
	})
}

// Due lists watching rows whose next check has come, for the external
// watcher loop.
func (t *Tracker) Due(ctx context.Context, limit int) ([]domain.JoinRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return t.Store.ListDueJoinRequests(ctx, t.now(), limit)
}

func actor(wallet string) *string {
	if wallet == "" {
		return nil
	}
	return &wallet
}
