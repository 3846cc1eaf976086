package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/eligibility"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/queue"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/registry"
)

const DefaultPrefix = "vault"

// Interpreter answers short text commands from group participants. It reuses
// the registry and evaluator primitives; it never talks to the chain or the
// store directly.
type Interpreter struct {
	Prefix    string
	Registry  *registry.Registry
	Evaluator *eligibility.Evaluator
	Queue     *queue.Queue
}

func New(prefix string, reg *registry.Registry, eval *eligibility.Evaluator, q *queue.Queue) *Interpreter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Interpreter{Prefix: prefix, Registry: reg, Evaluator: eval, Queue: q}
}

// Handle parses and dispatches one message. The second return is false when
// the message is not addressed to the gate and should be ignored.
func (i *Interpreter) Handle(ctx context.Context, groupID, senderWallet, text string) (string, bool, error) {
	cmd, ok := Parse(i.Prefix, text)
	if !ok {
		return "", false, nil
	}

	cfg, err := i.Registry.GetByGroup(ctx, groupID)
	if err != nil {
		return "", true, err
	}
	if cfg == nil {
		return i.unconfiguredReply(cmd), true, nil
	}

	role := domain.ResolveRole(senderWallet, *cfg)

	switch cmd.Kind {
	case KindHelp:
		return i.helpText(), true, nil
	case KindStatus:
		return renderStatus(*cfg), true, nil
	case KindRules:
		return renderRules(*cfg), true, nil
	case KindLock, KindUnlock:
		if role != domain.RoleOwner {
			return "Only the vault owner can lock or unlock joins.", true, nil
		}
		return i.setLock(ctx, *cfg, senderWallet, cmd.Kind == KindLock)
	case KindCheck:
		target := cmd.Arg
		if target == "" {
			target = senderWallet
		}
		if target != senderWallet && !role.AtLeastAdmin() {
			return "Checking another wallet needs an admin or the owner.", true, nil
		}
		return i.check(ctx, *cfg, target)
	case KindSync:
		if !role.AtLeastAdmin() {
			return "Sync needs an admin or the owner.", true, nil
		}
		return "Sync requested. Membership will be reconciled shortly.", true, nil
	default:
		return "Unknown command. " + i.helpText(), true, nil
	}
}

func (i *Interpreter) unconfiguredReply(cmd Command) string {
	switch cmd.Kind {
	case KindHelp:
		return i.helpText()
	case KindStatus:
		return "No vault is configured for this group yet."
	case KindRules:
		return "No gating rules: this group has no vault configured."
	default:
		return "This group has no vault configured, so only help, status and rules are available."
	}
}

func (i *Interpreter) helpText() string {
	p := i.Prefix
	return strings.Join([]string{
		"Commands:",
		fmt.Sprintf("  %s status          - vault summary", p),
		fmt.Sprintf("  %s rules           - gating parameters", p),
		fmt.Sprintf("  %s check [wallet]  - eligibility check", p),
		fmt.Sprintf("  %s lock | unlock   - owner only, pause or resume joins", p),
		fmt.Sprintf("  %s sync            - admin only, reconcile membership", p),
	}, "\n")
}

func renderStatus(cfg domain.VaultConfig) string {
	lock := "open"
	if cfg.Gating.JoinLocked {
		lock = "locked"
	}
	gating := "off"
	if cfg.Gating.Enabled {
		gating = string(cfg.Gating.Mode)
	}
	return strings.Join([]string{
		"Vault " + cfg.VaultAddress,
		fmt.Sprintf("  group: %s  chain: %d  config v%d", cfg.GroupID, cfg.ChainID, cfg.ConfigVersion),
		fmt.Sprintf("  gating: %s  joins: %s", gating, lock),
		fmt.Sprintf("  owner: %s  admins: %d", cfg.OwnerAddress, len(cfg.Roles.Admins)),
	}, "\n")
}

func renderRules(cfg domain.VaultConfig) string {
	if !cfg.Gating.Enabled || cfg.Gating.Mode == domain.GateNone {
		return "Joins are open: no gating is enforced."
	}
	switch cfg.Gating.Mode {
	case domain.GateShares:
		return fmt.Sprintf("Joining requires holding at least %d vault shares (%s).", cfg.Gating.MinShares, cfg.ShareTokenAddress)
	case domain.GateDeposit:
		return fmt.Sprintf("Joining requires holding at least %d of the creator coin (%s).", cfg.Gating.MinShares, cfg.CoinAddress)
	case domain.GateAllowlist:
		return fmt.Sprintf("Joining is allowlist-only (%d wallets).", len(cfg.Gating.Allowlist))
	}
	return "Gating mode: " + string(cfg.Gating.Mode)
}

func (i *Interpreter) setLock(ctx context.Context, cfg domain.VaultConfig, actor string, locked bool) (string, bool, error) {
	if err := i.Registry.SetJoinLocked(ctx, cfg.VaultAddress, locked, actor); err != nil {
		return "", true, err
	}
	actionType := domain.ActionUnlockGroup
	reply := "Joins unlocked."
	if locked {
		actionType = domain.ActionLockGroup
		reply = "Joins locked. New members are paused until unlock."
	}
	if _, err := i.Queue.Enqueue(ctx, cfg.VaultAddress, cfg.GroupID, actionType, map[string]any{"locked": locked}, "lock:"+cfg.VaultAddress); err != nil {
		return "", true, err
	}
	return reply, true, nil
}

func (i *Interpreter) check(ctx context.Context, cfg domain.VaultConfig, wallet string) (string, bool, error) {
	if cfg.Gating.Mode == domain.GateAllowlist {
		if cfg.Allowlisted(wallet) {
			return fmt.Sprintf("%s is on the allowlist.", wallet), true, nil
		}
		return fmt.Sprintf("%s is not on the allowlist.", wallet), true, nil
	}
	mint, needed, err := cfg.GatingMint()
	if err != nil {
		return "", true, err
	}
	if !needed {
		return "Joins are open: no balance requirement to check.", true, nil
	}
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return fmt.Sprintf("%q is not a valid wallet address.", wallet), true, nil
	}
	res := i.Evaluator.Check(ctx, i.Evaluator.Endpoints[0], pk, mint, cfg.Gating.MinShares)
	switch res.Reason {
	case domain.ReasonOnchainReadFailed:
		return fmt.Sprintf("Could not read the chain (endpoint %s). Try again.", res.Evidence.Endpoint), true, nil
	case domain.ReasonEligible:
		return fmt.Sprintf("%s is eligible: balance %d >= %d (slot %d via %s).",
			wallet, res.Evidence.Balance, res.Evidence.Threshold, res.Evidence.Slot, res.Evidence.Endpoint), true, nil
	default:
		return fmt.Sprintf("%s is not eligible: balance %d < %d (slot %d via %s).",
			wallet, res.Evidence.Balance, res.Evidence.Threshold, res.Evidence.Slot, res.Evidence.Endpoint), true, nil
	}
}
