package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidConfig         = errors.New("invalid config")
	ErrVaultNotConfigured    = errors.New("vault not configured")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrUnsupportedGatingMode = errors.New("unsupported gating mode")
	ErrVaultMisconfigured    = errors.New("vault misconfigured")
)

type GatingMode string

const (
	GateShares    GatingMode = "shares"
	GateNone      GatingMode = "none"
	GateDeposit   GatingMode = "deposit"
	GateAllowlist GatingMode = "allowlist"
)

type Gating struct {
	Enabled    bool       `json:"enabled"`
	JoinLocked bool       `json:"join_locked"`
	Mode       GatingMode `json:"mode"`
	MinShares  uint64     `json:"min_shares"`
	FailClosed bool       `json:"fail_closed"`
	Allowlist  []string   `json:"allowlist,omitempty"`
}

type VaultRoles struct {
	Owner     string   `json:"owner"`
	Admins    []string `json:"admins,omitempty"`
	Operators []string `json:"operators,omitempty"`
}

type Behavior struct {
	WatchIneligible    bool `json:"watch_ineligible"`
	AutoKickIneligible bool `json:"auto_kick_ineligible"`
	AnnounceJoins      bool `json:"announce_joins"`
}

type RateLimits struct {
	JoinsPerWalletPerHour int `json:"joins_per_wallet_per_hour,omitempty"`
	CommandsPerMinute     int `json:"commands_per_minute,omitempty"`
}

// VaultConfig is the full per-group configuration document. It is upserted
// wholesale, keyed by vault address; ConfigHash covers the canonical JSON of
// the document and ConfigVersion increments on every upsert.
type VaultConfig struct {
	VaultAddress      string     `json:"vault_address"`
	ChainID           uint32     `json:"chain_id"`
	GroupID           string     `json:"group_id"`
	CoinAddress       string     `json:"coin_address"`
	OwnerAddress      string     `json:"owner_address"`
	ShareTokenAddress string     `json:"share_token_address,omitempty"`
	Gating            Gating     `json:"gating"`
	Roles             VaultRoles `json:"roles"`
	Behavior          Behavior   `json:"behavior"`
	RateLimits        RateLimits `json:"rate_limits"`

	ConfigVersion int64     `json:"config_version,omitempty"`
	ConfigHash    string    `json:"config_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// ConfigDocument is the hashed portion of the config: everything the operator
// supplies, nothing the store derives.
func (v VaultConfig) ConfigDocument() map[string]any {
	doc := map[string]any{
		"vault_address": v.VaultAddress,
		"chain_id":      v.ChainID,
		"group_id":      v.GroupID,
		"coin_address":  v.CoinAddress,
		"owner_address": v.OwnerAddress,
		"gating":        v.Gating,
		"roles":         v.Roles,
		"behavior":      v.Behavior,
		"rate_limits":   v.RateLimits,
	}
	if v.ShareTokenAddress != "" {
		doc["share_token_address"] = v.ShareTokenAddress
	}
	return doc
}

func (v VaultConfig) Validate() error {
	if _, err := solana.PublicKeyFromBase58(v.VaultAddress); err != nil {
		return fmt.Errorf("%w: vault_address %q", ErrInvalidConfig, v.VaultAddress)
	}
	if v.ChainID == 0 {
		return fmt.Errorf("%w: chain_id required", ErrInvalidConfig)
	}
	if strings.TrimSpace(v.GroupID) == "" {
		return fmt.Errorf("%w: group_id required", ErrInvalidConfig)
	}
	if _, err := solana.PublicKeyFromBase58(v.CoinAddress); err != nil {
		return fmt.Errorf("%w: coin_address %q", ErrInvalidConfig, v.CoinAddress)
	}
	if _, err := solana.PublicKeyFromBase58(v.OwnerAddress); err != nil {
		return fmt.Errorf("%w: owner_address %q", ErrInvalidConfig, v.OwnerAddress)
	}
	if v.ShareTokenAddress != "" {
		if _, err := solana.PublicKeyFromBase58(v.ShareTokenAddress); err != nil {
			return fmt.Errorf("%w: share_token_address %q", ErrInvalidConfig, v.ShareTokenAddress)
		}
	}
	switch v.Gating.Mode {
	case GateShares:
		if v.ShareTokenAddress == "" {
			return fmt.Errorf("%w: shares gating requires share_token_address", ErrVaultMisconfigured)
		}
		if v.Gating.MinShares == 0 {
			return fmt.Errorf("%w: min_shares required for shares gating", ErrInvalidConfig)
		}
	case GateDeposit:
		if v.Gating.MinShares == 0 {
			return fmt.Errorf("%w: min_shares required for deposit gating", ErrInvalidConfig)
		}
	case GateNone, GateAllowlist:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedGatingMode, v.Gating.Mode)
	}
	if v.Roles.Owner != "" && v.Roles.Owner != v.OwnerAddress {
		return fmt.Errorf("%w: roles.owner must match owner_address", ErrInvalidConfig)
	}
	return nil
}

// GatingMint returns the token whose balance gates joins under the config's
// mode, or false when the mode needs no balance read.
func (v VaultConfig) GatingMint() (solana.PublicKey, bool, error) {
	switch v.Gating.Mode {
	case GateShares:
		pk, err := solana.PublicKeyFromBase58(v.ShareTokenAddress)
		if err != nil {
			return solana.PublicKey{}, false, fmt.Errorf("%w: share token: %v", ErrVaultMisconfigured, err)
		}
		return pk, true, nil
	case GateDeposit:
		pk, err := solana.PublicKeyFromBase58(v.CoinAddress)
		if err != nil {
			return solana.PublicKey{}, false, fmt.Errorf("%w: coin: %v", ErrVaultMisconfigured, err)
		}
		return pk, true, nil
	default:
		return solana.PublicKey{}, false, nil
	}
}

func (v VaultConfig) Allowlisted(wallet string) bool {
	for _, w := range v.Gating.Allowlist {
		if w == wallet {
			return true
		}
	}
	return false
}

// ParseVaultConfig decodes a config document strictly; unknown top-level
// fields are rejected so typos fail loudly instead of silently hashing in.
func ParseVaultConfig(raw []byte) (VaultConfig, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	var v VaultConfig
	if err := dec.Decode(&v); err != nil {
		return VaultConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return v, nil
}
