package eligibility

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/wenakita/CreatorVault-sub008/pkg/chain"
	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

// Result is a single eligibility decision with the evidence that produced it.
// A failed read is a result, not an error; the caller owns the closed/open
// policy.
type Result struct {
	Eligible bool           `json:"eligible"`
	Reason   string         `json:"reason"`
	Evidence chain.Evidence `json:"evidence"`
}

// Outcome combines the double-read consensus: Admit only when both reads
// agree, VerificationFailed when a read failed under fail-closed.
type Outcome struct {
	Admit              bool     `json:"admit"`
	VerificationFailed bool     `json:"verification_failed"`
	Reason             string   `json:"reason"`
	Reads              []Result `json:"reads"`
}

type Evaluator struct {
	Reader    chain.BalanceReader
	Endpoints []string
}

func New(reader chain.BalanceReader, endpoints []string) *Evaluator {
	return &Evaluator{Reader: reader, Endpoints: endpoints}
}

// Check performs one balance read against one endpoint and compares to the
// threshold (>=).
func (e *Evaluator) Check(ctx context.Context, endpoint string, wallet, mint solana.PublicKey, threshold uint64) Result {
	balance, slot, err := e.Reader.TokenBalance(ctx, endpoint, wallet, mint)
	ev := chain.Evidence{Threshold: threshold, Endpoint: endpoint}
	if err != nil {
		return Result{Eligible: false, Reason: domain.ReasonOnchainReadFailed, Evidence: ev}
	}
	ev.Balance = balance
	ev.Slot = slot
	if balance >= threshold {
		return Result{Eligible: true, Reason: domain.ReasonEligible, Evidence: ev}
	}
	return Result{Eligible: false, Reason: domain.ReasonIneligible, Evidence: ev}
}

// CheckDouble runs the check against two distinct configured endpoints (the
// second excludes whichever the first used) and admits only if both reads
// report eligible. A single flaky endpoint can neither falsely admit nor
// permanently lock out a wallet.
func (e *Evaluator) CheckDouble(ctx context.Context, wallet, mint solana.PublicKey, threshold uint64, failClosed bool) Outcome {
	first, second := e.pickEndpoints()

	r1 := e.Check(ctx, first, wallet, mint, threshold)
	r2 := e.Check(ctx, second, wallet, mint, threshold)
	reads := []Result{r1, r2}

	failed1 := r1.Reason == domain.ReasonOnchainReadFailed
	failed2 := r2.Reason == domain.ReasonOnchainReadFailed

	if (failed1 || failed2) && failClosed {
		return Outcome{VerificationFailed: true, Reason: domain.ReasonVerificationFailed, Reads: reads}
	}
	if failed1 && failed2 {
		return Outcome{VerificationFailed: true, Reason: domain.ReasonOnchainReadFailed, Reads: reads}
	}
	// Fail-open: successful reads decide; a failed read is skipped.
	for _, r := range reads {
		if r.Reason == domain.ReasonOnchainReadFailed {
			continue
		}
		if !r.Eligible {
			return Outcome{Reason: domain.ReasonIneligible, Reads: reads}
		}
	}
	return Outcome{Admit: true, Reason: domain.ReasonEligible, Reads: reads}
}

// pickEndpoints returns two distinct endpoints when configured; with a single
// endpoint the check degrades to reading it twice.
func (e *Evaluator) pickEndpoints() (string, string) {
	first := e.Endpoints[0]
	for _, ep := range e.Endpoints[1:] {
		if ep != first {
			return first, ep
		}
	}
	return first, first
}
