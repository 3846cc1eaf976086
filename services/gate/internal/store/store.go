package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) UpsertVault(ctx context.Context, v domain.VaultConfig) (domain.VaultConfig, error) {
	gating, _ := json.Marshal(v.Gating)
	roles, _ := json.Marshal(v.Roles)
	behavior, _ := json.Marshal(v.Behavior)
	rateLimits, _ := json.Marshal(v.RateLimits)
	config, _ := json.Marshal(v.ConfigDocument())

	err := s.DB.QueryRow(ctx, `
INSERT INTO gate_vaults(vault_address,chain_id,group_id,coin_address,owner_address,share_token_address,
  gating,roles,behavior,rate_limits,config,config_hash,config_version)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9::jsonb,$10::jsonb,$11::jsonb,$12,1)
ON CONFLICT (vault_address) DO UPDATE SET
  chain_id=EXCLUDED.chain_id,
  group_id=EXCLUDED.group_id,
  coin_address=EXCLUDED.coin_address,
  owner_address=EXCLUDED.owner_address,
  share_token_address=EXCLUDED.share_token_address,
  gating=EXCLUDED.gating,
  roles=EXCLUDED.roles,
  behavior=EXCLUDED.behavior,
  rate_limits=EXCLUDED.rate_limits,
  config=EXCLUDED.config,
  config_hash=EXCLUDED.config_hash,
  config_version=gate_vaults.config_version+1,
  updated_at=now()
RETURNING config_version,created_at,updated_at
`, v.VaultAddress, v.ChainID, v.GroupID, v.CoinAddress, v.OwnerAddress, nullable(v.ShareTokenAddress),
		string(gating), string(roles), string(behavior), string(rateLimits), string(config), v.ConfigHash).
		Scan(&v.ConfigVersion, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return domain.VaultConfig{}, err
	}
	return v, nil
}

const vaultColumns = `vault_address,chain_id,group_id,coin_address,owner_address,share_token_address,
  gating,roles,behavior,rate_limits,config_hash,config_version,created_at,updated_at`

func (s *Store) GetVaultByAddress(ctx context.Context, vault string) (*domain.VaultConfig, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+vaultColumns+` FROM gate_vaults WHERE vault_address=$1`, vault)
	return scanVault(row)
}

func (s *Store) GetVaultByGroup(ctx context.Context, groupID string) (*domain.VaultConfig, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+vaultColumns+` FROM gate_vaults WHERE group_id=$1`, groupID)
	return scanVault(row)
}

func scanVault(row pgx.Row) (*domain.VaultConfig, error) {
	var v domain.VaultConfig
	var shareToken *string
	var gating, roles, behavior, rateLimits []byte
	err := row.Scan(&v.VaultAddress, &v.ChainID, &v.GroupID, &v.CoinAddress, &v.OwnerAddress, &shareToken,
		&gating, &roles, &behavior, &rateLimits, &v.ConfigHash, &v.ConfigVersion, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if shareToken != nil {
		v.ShareTokenAddress = *shareToken
	}
	if err := json.Unmarshal(gating, &v.Gating); err != nil {
		return nil, fmt.Errorf("decode gating: %w", err)
	}
	if err := json.Unmarshal(roles, &v.Roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	if err := json.Unmarshal(behavior, &v.Behavior); err != nil {
		return nil, fmt.Errorf("decode behavior: %w", err)
	}
	if err := json.Unmarshal(rateLimits, &v.RateLimits); err != nil {
		return nil, fmt.Errorf("decode rate_limits: %w", err)
	}
	return &v, nil
}

// EnqueueAction inserts an action row. With a dedupe key the call serializes
// against concurrent enqueues for the same key and returns the existing
// non-terminal row's id unchanged; unrelated keys proceed in parallel.
func (s *Store) EnqueueAction(ctx context.Context, a domain.Action) (string, bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	if a.DedupeKey != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('gate_action:' || $1))`, a.DedupeKey); err != nil {
			return "", false, err
		}
		var existing string
		err := tx.QueryRow(ctx, `
SELECT action_id FROM gate_actions
WHERE dedupe_key=$1 AND status IN ('pending','retry','executing')
ORDER BY created_at ASC LIMIT 1
`, a.DedupeKey).Scan(&existing)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return "", false, err
			}
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, err
		}
	}

	payload, _ := json.Marshal(a.Payload)
	if _, err := tx.Exec(ctx, `
INSERT INTO gate_actions(action_id,vault_address,group_id,action_type,payload,dedupe_key,status)
VALUES($1,$2,$3,$4,$5::jsonb,$6,'pending')
`, a.ActionID, a.VaultAddress, a.GroupID, a.ActionType, string(payload), nullable(a.DedupeKey)); err != nil {
		return "", false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return a.ActionID, true, nil
}

const actionColumns = `action_id,vault_address,group_id,action_type,payload,dedupe_key,status,created_at,updated_at`

func (s *Store) GetAction(ctx context.Context, id string) (*domain.Action, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+actionColumns+` FROM gate_actions WHERE action_id=$1`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListActions(ctx context.Context, status domain.ActionStatus, limit int) ([]domain.Action, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+actionColumns+` FROM gate_actions
WHERE status=$1
ORDER BY created_at ASC, action_id ASC
LIMIT $2
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAction(row pgx.Row) (*domain.Action, error) {
	var a domain.Action
	var payload []byte
	var dedupe *string
	if err := row.Scan(&a.ActionID, &a.VaultAddress, &a.GroupID, &a.ActionType, &payload, &dedupe, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if dedupe != nil {
		a.DedupeKey = *dedupe
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &a, nil
}

// UpdateActionStatus is the execution runtime's write-back path. Transitions
// outside the pending/retry -> executing -> executed|failed|retry protocol are
// rejected; terminal rows never change.
func (s *Store) UpdateActionStatus(ctx context.Context, id string, to domain.ActionStatus) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var from domain.ActionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM gate_actions WHERE action_id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !domain.ValidActionTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE gate_actions SET status=$2, updated_at=now() WHERE action_id=$1`, id, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetJoinRequest(ctx context.Context, vault, wallet string) (*domain.JoinRequest, error) {
	var jr domain.JoinRequest
	var actionID *string
	var lastChecked, nextCheck *time.Time
	err := s.DB.QueryRow(ctx, `
SELECT vault_address,wallet,status,reason,action_id,last_checked_at,next_check_at,updated_at
FROM gate_join_requests
WHERE vault_address=$1 AND wallet=$2
`, vault, wallet).Scan(&jr.VaultAddress, &jr.Wallet, &jr.Status, &jr.Reason, &actionID, &lastChecked, &nextCheck, &jr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if actionID != nil {
		jr.ActionID = *actionID
	}
	if lastChecked != nil {
		jr.LastCheckedAt = *lastChecked
	}
	if nextCheck != nil {
		jr.NextCheckAt = *nextCheck
	}
	return &jr, nil
}

// UpsertJoinRequest applies the tracker's re-entry rule: insert when absent,
// update only rows whose current status allows re-entry. Returns whether the
// write was applied; queued/added rows are left untouched.
func (s *Store) UpsertJoinRequest(ctx context.Context, jr domain.JoinRequest) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
INSERT INTO gate_join_requests(vault_address,wallet,status,reason,action_id,last_checked_at,next_check_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,now())
ON CONFLICT (vault_address,wallet) DO UPDATE SET
  status=EXCLUDED.status,
  reason=EXCLUDED.reason,
  action_id=EXCLUDED.action_id,
  last_checked_at=EXCLUDED.last_checked_at,
  next_check_at=EXCLUDED.next_check_at,
  updated_at=now()
WHERE gate_join_requests.status IN ('watching','failed','cancelled')
`, jr.VaultAddress, jr.Wallet, jr.Status, jr.Reason, nullable(jr.ActionID), nullableTime(jr.LastCheckedAt), nullableTime(jr.NextCheckAt))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetJoinRequestStatus force-writes a status (admin cancel, runtime outcome).
func (s *Store) SetJoinRequestStatus(ctx context.Context, vault, wallet string, status domain.JoinStatus, reason string) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE gate_join_requests SET status=$3, reason=$4, updated_at=now()
WHERE vault_address=$1 AND wallet=$2
`, vault, wallet, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListDueJoinRequests(ctx context.Context, now time.Time, limit int) ([]domain.JoinRequest, error) {
	rows, err := s.DB.Query(ctx, `
SELECT vault_address,wallet,status,reason,action_id,last_checked_at,next_check_at,updated_at
FROM gate_join_requests
WHERE status='watching' AND next_check_at <= $1
ORDER BY next_check_at ASC
LIMIT $2
`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JoinRequest
	for rows.Next() {
		var jr domain.JoinRequest
		var actionID *string
		var lastChecked, nextCheck *time.Time
		if err := rows.Scan(&jr.VaultAddress, &jr.Wallet, &jr.Status, &jr.Reason, &actionID, &lastChecked, &nextCheck, &jr.UpdatedAt); err != nil {
			return nil, err
		}
		if actionID != nil {
			jr.ActionID = *actionID
		}
		if lastChecked != nil {
			jr.LastCheckedAt = *lastChecked
		}
		if nextCheck != nil {
			jr.NextCheckAt = *nextCheck
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	details, _ := json.Marshal(e.Details)
	_, err := s.DB.Exec(ctx, `
INSERT INTO gate_audit_log(vault_address,actor_wallet,event_type,details)
VALUES($1,$2,$3,$4::jsonb)
`, e.VaultAddress, e.ActorWallet, e.EventType, string(details))
	return err
}

func (s *Store) ListAudit(ctx context.Context, vault string, limit int) ([]domain.AuditEntry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id,vault_address,actor_wallet,event_type,details,created_at
FROM gate_audit_log
WHERE vault_address=$1
ORDER BY id DESC
LIMIT $2
`, vault, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.VaultAddress, &e.ActorWallet, &e.EventType, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
