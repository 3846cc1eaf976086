package command

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/eligibility"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/queue"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/registry"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/store"
)

const (
	testVault  = "So11111111111111111111111111111111111111112"
	testOwner  = "11111111111111111111111111111111"
	testCoin   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testShares = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	testAdmin  = "SysvarRent111111111111111111111111111111111"
	testMember = "SysvarC1ock11111111111111111111111111111111"
)

func TestParseVariants(t *testing.T) {
	cases := []struct {
		text    string
		handled bool
		kind    Kind
		arg     string
	}{
		{"vault status", true, KindStatus, ""},
		{"/vault STATUS", true, KindStatus, ""},
		{"!Vault rules", true, KindRules, ""},
		{"vault check " + testMember, true, KindCheck, testMember},
		{"vault", true, KindHelp, ""},
		{"vault dance", true, KindUnknown, ""},
		{"hello there", false, "", ""},
		{"", false, "", ""},
		{"vaultstatus", false, "", ""},
	}
	for _, tc := range cases {
		cmd, ok := Parse("vault", tc.text)
		if ok != tc.handled {
			t.Fatalf("%q: handled=%v, want %v", tc.text, ok, tc.handled)
		}
		if !ok {
			continue
		}
		if cmd.Kind != tc.kind || cmd.Arg != tc.arg {
			t.Fatalf("%q: got %+v, want kind=%s arg=%q", tc.text, cmd, tc.kind, tc.arg)
		}
	}
}

type staticReader struct{ balance uint64 }

func (s staticReader) TokenBalance(_ context.Context, _ string, _, _ solana.PublicKey) (uint64, uint64, error) {
	return s.balance, 77, nil
}

func newInterpreter(t *testing.T, balance uint64) (*Interpreter, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.New(mem, 30168)
	eval := eligibility.New(staticReader{balance: balance}, []string{"http://a", "http://b"})
	q := queue.New(mem)

	cfg := domain.VaultConfig{
		VaultAddress:      testVault,
		ChainID:           30168,
		GroupID:           "grp_main",
		CoinAddress:       testCoin,
		OwnerAddress:      testOwner,
		ShareTokenAddress: testShares,
		Gating:            domain.Gating{Enabled: true, Mode: domain.GateShares, MinShares: 100, FailClosed: true},
		Roles:             domain.VaultRoles{Owner: testOwner, Admins: []string{testAdmin}},
	}
	if _, err := reg.UpsertVaultConfig(context.Background(), cfg, testOwner); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return New("vault", reg, eval, q), mem
}

func TestStatusAndRulesAnyRole(t *testing.T) {
	i, _ := newInterpreter(t, 150)
	ctx := context.Background()

	reply, handled, err := i.Handle(ctx, "grp_main", testMember, "vault status")
	if err != nil || !handled {
		t.Fatalf("status: %v handled=%v", err, handled)
	}
	if !strings.Contains(reply, testVault) || !strings.Contains(reply, "grp_main") {
		t.Fatalf("status reply incomplete: %q", reply)
	}

	reply, _, err = i.Handle(ctx, "grp_main", testMember, "vault rules")
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if !strings.Contains(reply, "100") || !strings.Contains(reply, testShares) {
		t.Fatalf("rules reply incomplete: %q", reply)
	}
}

func TestLockIsOwnerOnly(t *testing.T) {
	i, mem := newInterpreter(t, 150)
	ctx := context.Background()

	for _, wallet := range []string{testMember, testAdmin} {
		reply, handled, err := i.Handle(ctx, "grp_main", wallet, "vault lock")
		if err != nil || !handled {
			t.Fatalf("lock as %s: %v", wallet, err)
		}
		if !strings.Contains(reply, "owner") {
			t.Fatalf("expected denial, got %q", reply)
		}
	}
	cfg, _ := mem.GetVaultByAddress(ctx, testVault)
	if cfg.Gating.JoinLocked {
		t.Fatalf("denied lock must not take effect")
	}

	if _, _, err := i.Handle(ctx, "grp_main", testOwner, "vault lock"); err != nil {
		t.Fatalf("owner lock: %v", err)
	}
	cfg, _ = mem.GetVaultByAddress(ctx, testVault)
	if !cfg.Gating.JoinLocked {
		t.Fatalf("owner lock must take effect")
	}
	locks, _ := mem.ListActions(ctx, domain.ActionPending, 10)
	if len(locks) != 1 || locks[0].ActionType != domain.ActionLockGroup {
		t.Fatalf("lock must enqueue a lock_group action: %+v", locks)
	}
}

func TestCheckSelfVsOther(t *testing.T) {
	i, _ := newInterpreter(t, 150)
	ctx := context.Background()

	reply, _, err := i.Handle(ctx, "grp_main", testMember, "vault check")
	if err != nil {
		t.Fatalf("self check: %v", err)
	}
	if !strings.Contains(reply, "eligible") || !strings.Contains(reply, "150") {
		t.Fatalf("self check reply: %q", reply)
	}

	reply, _, err = i.Handle(ctx, "grp_main", testMember, fmt.Sprintf("vault check %s", testAdmin))
	if err != nil {
		t.Fatalf("other check: %v", err)
	}
	if !strings.Contains(reply, "admin") {
		t.Fatalf("member checking another wallet must be denied: %q", reply)
	}

	reply, _, err = i.Handle(ctx, "grp_main", testAdmin, fmt.Sprintf("vault check %s", testMember))
	if err != nil {
		t.Fatalf("admin check: %v", err)
	}
	if !strings.Contains(reply, "eligible") {
		t.Fatalf("admin may check others: %q", reply)
	}
}

func TestSyncNeedsAdmin(t *testing.T) {
	i, _ := newInterpreter(t, 150)
	ctx := context.Background()

	reply, _, _ := i.Handle(ctx, "grp_main", testMember, "vault sync")
	if !strings.Contains(reply, "admin") {
		t.Fatalf("member sync must be denied: %q", reply)
	}
	reply, _, _ = i.Handle(ctx, "grp_main", testAdmin, "vault sync")
	if !strings.Contains(reply, "Sync requested") {
		t.Fatalf("admin sync should acknowledge: %q", reply)
	}
}

func TestUnconfiguredGroupStaticGuidance(t *testing.T) {
	i, _ := newInterpreter(t, 150)
	ctx := context.Background()

	reply, handled, err := i.Handle(ctx, "grp_other", testOwner, "vault lock")
	if err != nil || !handled {
		t.Fatalf("unconfigured lock: %v", err)
	}
	if !strings.Contains(reply, "no vault configured") {
		t.Fatalf("expected guidance, got %q", reply)
	}

	reply, _, _ = i.Handle(ctx, "grp_other", testOwner, "vault help")
	if !strings.Contains(reply, "Commands:") {
		t.Fatalf("help must work unconfigured: %q", reply)
	}
	reply, _, _ = i.Handle(ctx, "grp_other", testOwner, "vault status")
	if !strings.Contains(reply, "No vault") {
		t.Fatalf("status must answer unconfigured: %q", reply)
	}
}

func TestUnknownCommandReturnsGuidance(t *testing.T) {
	i, _ := newInterpreter(t, 150)
	reply, handled, err := i.Handle(context.Background(), "grp_main", testMember, "vault dance")
	if err != nil || !handled {
		t.Fatalf("unknown: %v", err)
	}
	if !strings.Contains(reply, "Unknown command") {
		t.Fatalf("got %q", reply)
	}
}
