package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

type Store interface {
	EnqueueAction(ctx context.Context, a domain.Action) (id string, inserted bool, err error)
	GetAction(ctx context.Context, id string) (*domain.Action, error)
	ListActions(ctx context.Context, status domain.ActionStatus, limit int) ([]domain.Action, error)
	UpdateActionStatus(ctx context.Context, id string, to domain.ActionStatus) error
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
}

// Queue admits side-effecting actions exactly once per dedupe key. Execution
// belongs to the external runtime; this component only owns admission.
type Queue struct {
	Store Store
}

func New(st Store) *Queue { return &Queue{Store: st} }

// Enqueue inserts an action and returns its id. With a dedupe key, concurrent
// and repeated calls while a row for the key is in flight all return the same
// id.
func (q *Queue) Enqueue(ctx context.Context, vault, group string, actionType domain.ActionType, payload map[string]any, dedupeKey string) (string, error) {
	id, inserted, err := q.Store.EnqueueAction(ctx, domain.Action{
		ActionID:     "act_" + uuid.NewString(),
		VaultAddress: vault,
		GroupID:      group,
		ActionType:   actionType,
		Payload:      payload,
		DedupeKey:    dedupeKey,
		Status:       domain.ActionPending,
	})
	if err != nil {
		return "", err
	}
	if inserted {
		_ = q.Store.AppendAudit(ctx, domain.AuditEntry{
			VaultAddress: vault,
			EventType:    "action_enqueued",
			Details: map[string]any{
				"action_id":   id,
				"action_type": string(actionType),
				"dedupe_key":  dedupeKey,
			},
		})
	}
	return id, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.Action, error) {
	return q.Store.GetAction(ctx, id)
}

func (q *Queue) ListByStatus(ctx context.Context, status domain.ActionStatus, limit int) ([]domain.Action, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return q.Store.ListActions(ctx, status, limit)
}

// SetStatus is the execution runtime's write-back. Invalid transitions are
// rejected by the store.
func (q *Queue) SetStatus(ctx context.Context, id string, to domain.ActionStatus) error {
	return q.Store.UpdateActionStatus(ctx, id, to)
}
