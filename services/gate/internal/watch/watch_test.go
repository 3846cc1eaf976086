package watch

import (
	"context"
	"testing"
	"time"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/store"
)

const (
	testVault  = "So11111111111111111111111111111111111111112"
	testWallet = "SysvarC1ock11111111111111111111111111111111"
)

func newTracker() (*Tracker, *store.Memory) {
	mem := store.NewMemory()
	return New(mem), mem
}

func TestWatchIneligibleSchedulesRecheck(t *testing.T) {
	tr, _ := newTracker()
	ctx := context.Background()
	base := time.Now()
	tr.now = func() time.Time { return base }

	if err := tr.WatchIneligible(ctx, testVault, testWallet, domain.ReasonIneligible); err != nil {
		t.Fatalf("watch: %v", err)
	}
	jr, err := tr.Status(ctx, testVault, testWallet)
	if err != nil || jr == nil {
		t.Fatalf("status: %v %+v", err, jr)
	}
	if jr.Status != domain.JoinWatching || jr.Reason != domain.ReasonIneligible {
		t.Fatalf("unexpected row: %+v", jr)
	}
	if !jr.NextCheckAt.Equal(base.Add(RecheckInterval)) {
		t.Fatalf("next check at %v, want %v", jr.NextCheckAt, base.Add(RecheckInterval))
	}
}

func TestWatchNeverOverwritesQueued(t *testing.T) {
	tr, _ := newTracker()
	ctx := context.Background()

	if err := tr.MarkQueued(ctx, testVault, testWallet, "act_1"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := tr.WatchIneligible(ctx, testVault, testWallet, domain.ReasonIneligible); err != nil {
		t.Fatalf("watch: %v", err)
	}
	jr, _ := tr.Status(ctx, testVault, testWallet)
	if jr.Status != domain.JoinQueued || jr.ActionID != "act_1" {
		t.Fatalf("queued row clobbered: %+v", jr)
	}
}

func TestWatchReentersAfterFailure(t *testing.T) {
	tr, mem := newTracker()
	ctx := context.Background()

	mem.UpsertJoinRequest(ctx, domain.JoinRequest{
		VaultAddress: testVault, Wallet: testWallet, Status: domain.JoinFailed, Reason: "execution failed",
	})
	if err := tr.WatchIneligible(ctx, testVault, testWallet, domain.ReasonIneligible); err != nil {
		t.Fatalf("watch: %v", err)
	}
	jr, _ := tr.Status(ctx, testVault, testWallet)
	if jr.Status != domain.JoinWatching {
		t.Fatalf("failed row should re-enter watching: %+v", jr)
	}
}

func TestStatusDerivesAddedFromExecutedAction(t *testing.T) {
	tr, mem := newTracker()
	ctx := context.Background()

	id, _, err := mem.EnqueueAction(ctx, domain.Action{
		ActionID: "act_1", VaultAddress: testVault, ActionType: domain.ActionAddMember,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tr.MarkQueued(ctx, testVault, testWallet, id); err != nil {
		t.Fatalf("queue: %v", err)
	}

	mem.UpdateActionStatus(ctx, id, domain.ActionExecuting)
	mem.UpdateActionStatus(ctx, id, domain.ActionExecuted)

	jr, err := tr.Status(ctx, testVault, testWallet)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if jr.Status != domain.JoinAdded {
		t.Fatalf("executed action must read as added, got %s", jr.Status)
	}
}

func TestStatusDerivesFailedFromFailedAction(t *testing.T) {
	tr, mem := newTracker()
	ctx := context.Background()

	mem.EnqueueAction(ctx, domain.Action{ActionID: "act_1", VaultAddress: testVault, ActionType: domain.ActionAddMember})
	tr.MarkQueued(ctx, testVault, testWallet, "act_1")
	mem.UpdateActionStatus(ctx, "act_1", domain.ActionExecuting)
	mem.UpdateActionStatus(ctx, "act_1", domain.ActionFailed)

	jr, _ := tr.Status(ctx, testVault, testWallet)
	if jr.Status != domain.JoinFailed {
		t.Fatalf("failed action must read as failed, got %s", jr.Status)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	tr, mem := newTracker()
	ctx := context.Background()

	tr.WatchIneligible(ctx, testVault, testWallet, domain.ReasonIneligible)
	if err := tr.Cancel(ctx, testVault, testWallet, "admin"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	jr, _ := tr.Status(ctx, testVault, testWallet)
	if jr.Status != domain.JoinCancelled {
		t.Fatalf("got %s", jr.Status)
	}

	audit, _ := mem.ListAudit(ctx, testVault, 10)
	found := false
	for _, e := range audit {
		if e.EventType == "join_cancelled" {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancel must audit")
	}
}

func TestDueReturnsOnlyOverdueWatchers(t *testing.T) {
	tr, _ := newTracker()
	ctx := context.Background()
	base := time.Now()

	tr.now = func() time.Time { return base }
	tr.WatchIneligible(ctx, testVault, testWallet, domain.ReasonIneligible)

	due, err := tr.Due(ctx, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("freshly scheduled row is not due yet")
	}

	tr.now = func() time.Time { return base.Add(RecheckInterval + time.Second) }
	due, err = tr.Due(ctx, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].Wallet != testWallet {
		t.Fatalf("expected the overdue row, got %+v", due)
	}
}
