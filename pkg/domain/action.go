package domain

import "time"

type ActionType string

const (
	ActionAddMember    ActionType = "add_member"
	ActionRemoveMember ActionType = "remove_member"
	ActionLockGroup    ActionType = "lock_group"
	ActionUnlockGroup  ActionType = "unlock_group"
)

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRetry     ActionStatus = "retry"
	ActionExecuting ActionStatus = "executing"
	ActionExecuted  ActionStatus = "executed"
	ActionFailed    ActionStatus = "failed"
)

// NonTerminal reports whether the status still occupies the dedupe scope:
// at most one action per dedupe key may be in a non-terminal status.
func (s ActionStatus) NonTerminal() bool {
	switch s {
	case ActionPending, ActionRetry, ActionExecuting:
		return true
	}
	return false
}

// ValidActionTransition enforces the write-back protocol of the execution
// runtime. Terminal rows never change status again.
func ValidActionTransition(from, to ActionStatus) bool {
	switch from {
	case ActionPending, ActionRetry:
		return to == ActionExecuting
	case ActionExecuting:
		return to == ActionExecuted || to == ActionFailed || to == ActionRetry
	}
	return false
}

type Action struct {
	ActionID     string         `json:"action_id"`
	VaultAddress string         `json:"vault_address"`
	GroupID      string         `json:"group_id"`
	ActionType   ActionType     `json:"action_type"`
	Payload      map[string]any `json:"payload,omitempty"`
	DedupeKey    string         `json:"dedupe_key,omitempty"`
	Status       ActionStatus   `json:"status"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

type JoinStatus string

const (
	JoinWatching  JoinStatus = "watching"
	JoinQueued    JoinStatus = "queued"
	JoinAdded     JoinStatus = "added"
	JoinFailed    JoinStatus = "failed"
	JoinCancelled JoinStatus = "cancelled"
)

type JoinRequest struct {
	VaultAddress  string     `json:"vault_address"`
	Wallet        string     `json:"wallet"`
	Status        JoinStatus `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	ActionID      string     `json:"action_id,omitempty"`
	LastCheckedAt time.Time  `json:"last_checked_at,omitempty"`
	NextCheckAt   time.Time  `json:"next_check_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitempty"`
}

// Reentrant reports whether a stored join request may be overwritten by a new
// watch or queue transition. Rows with in-flight or completed work never are.
func (s JoinStatus) Reentrant() bool {
	switch s {
	case JoinWatching, JoinFailed, JoinCancelled:
		return true
	}
	return false
}

type AuditEntry struct {
	ID           int64          `json:"id,omitempty"`
	VaultAddress string         `json:"vault_address"`
	ActorWallet  *string        `json:"actor_wallet,omitempty"`
	EventType    string         `json:"event_type"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// Reason codes carried on every gate decision.
const (
	ReasonEligible           = "eligible"
	ReasonIneligible         = "ineligible"
	ReasonOnchainReadFailed  = "onchain_read_failed"
	ReasonVerificationFailed = "verification_failed"
	ReasonJoinLocked         = "join_locked"
	ReasonGatingDisabled     = "gating_disabled"
	ReasonAllowlisted        = "allowlisted"
	ReasonNotAllowlisted     = "not_allowlisted"
)
