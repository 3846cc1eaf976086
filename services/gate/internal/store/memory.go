package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

// Memory is the in-process substitute for Store. It mirrors the Postgres
// semantics, including the per-dedupe-key serialization of EnqueueAction, so
// every component test can run against it.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	vaults   map[string]domain.VaultConfig
	actions  map[string]domain.Action
	requests map[string]domain.JoinRequest
	audit    []domain.AuditEntry
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		vaults:   map[string]domain.VaultConfig{},
		actions:  map[string]domain.Action{},
		requests: map[string]domain.JoinRequest{},
	}
}

func requestKey(vault, wallet string) string { return vault + "|" + wallet }

func (m *Memory) UpsertVault(_ context.Context, v domain.VaultConfig) (domain.VaultConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if prev, ok := m.vaults[v.VaultAddress]; ok {
		v.ConfigVersion = prev.ConfigVersion + 1
		v.CreatedAt = prev.CreatedAt
	} else {
		v.ConfigVersion = 1
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	m.vaults[v.VaultAddress] = v
	return v, nil
}

func (m *Memory) GetVaultByAddress(_ context.Context, vault string) (*domain.VaultConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vaults[vault]; ok {
		return &v, nil
	}
	return nil, nil
}

func (m *Memory) GetVaultByGroup(_ context.Context, groupID string) (*domain.VaultConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vaults {
		if v.GroupID == groupID {
			v := v
			return &v, nil
		}
	}
	return nil, nil
}

func (m *Memory) EnqueueAction(_ context.Context, a domain.Action) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.DedupeKey != "" {
		var candidates []domain.Action
		for _, existing := range m.actions {
			if existing.DedupeKey == a.DedupeKey && existing.Status.NonTerminal() {
				candidates = append(candidates, existing)
			}
		}
		if len(candidates) > 0 {
			sort.Slice(candidates, func(i, j int) bool {
				return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
			})
			return candidates[0].ActionID, false, nil
		}
	}
	a.Status = domain.ActionPending
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	m.actions[a.ActionID] = a
	return a.ActionID, true, nil
}

func (m *Memory) GetAction(_ context.Context, id string) (*domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actions[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) ListActions(_ context.Context, status domain.ActionStatus, limit int) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Action
	for _, a := range m.actions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateActionStatus(_ context.Context, id string, to domain.ActionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return ErrNotFound
	}
	if !domain.ValidActionTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = m.now()
	m.actions[id] = a
	return nil
}

func (m *Memory) GetJoinRequest(_ context.Context, vault, wallet string) (*domain.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jr, ok := m.requests[requestKey(vault, wallet)]; ok {
		return &jr, nil
	}
	return nil, nil
}

func (m *Memory) UpsertJoinRequest(_ context.Context, jr domain.JoinRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKey(jr.VaultAddress, jr.Wallet)
	if existing, ok := m.requests[key]; ok && !existing.Status.Reentrant() {
		return false, nil
	}
	jr.UpdatedAt = m.now()
	m.requests[key] = jr
	return true, nil
}

func (m *Memory) SetJoinRequestStatus(_ context.Context, vault, wallet string, status domain.JoinStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKey(vault, wallet)
	jr, ok := m.requests[key]
	if !ok {
		return ErrNotFound
	}
	jr.Status = status
	jr.Reason = reason
	jr.UpdatedAt = m.now()
	m.requests[key] = jr
	return nil
}

func (m *Memory) ListDueJoinRequests(_ context.Context, now time.Time, limit int) ([]domain.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JoinRequest
	for _, jr := range m.requests {
		if jr.Status == domain.JoinWatching && !jr.NextCheckAt.IsZero() && !jr.NextCheckAt.After(now) {
			out = append(out, jr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextCheckAt.Before(out[j].NextCheckAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = m.now()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, vault string, limit int) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].VaultAddress == vault {
			out = append(out, m.audit[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
