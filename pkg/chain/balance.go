package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// DefaultReadTimeout bounds a single balance read; a read that exceeds it is
// reported as failed, never retried inline.
const DefaultReadTimeout = 10 * time.Second

// Evidence is attached to every eligibility decision so it can be
// reconstructed from the audit log.
type Evidence struct {
	Balance   uint64 `json:"balance"`
	Threshold uint64 `json:"threshold"`
	Endpoint  string `json:"endpoint"`
	Slot      uint64 `json:"slot"`
}

// BalanceReader reads a wallet's balance of a token at one endpoint.
type BalanceReader interface {
	TokenBalance(ctx context.Context, endpoint string, wallet, mint solana.PublicKey) (balance, slot uint64, err error)
}

type rpcClient interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// RPCReader resolves the wallet's associated token account and reads its
// balance over JSON-RPC. A missing token account is a balance of zero, not a
// read failure.
type RPCReader struct {
	Timeout   time.Duration
	newClient func(endpoint string) rpcClient
}

func NewRPCReader(timeout time.Duration) *RPCReader {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &RPCReader{
		Timeout:   timeout,
		newClient: func(endpoint string) rpcClient { return rpc.New(endpoint) },
	}
}

func (r *RPCReader) TokenBalance(ctx context.Context, endpoint string, wallet, mint solana.PublicKey) (uint64, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	client := r.newClient(endpoint)

	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return 0, 0, fmt.Errorf("derive token account: %w", err)
	}

	out, err := client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if accountNotFound(err) {
			slot, slotErr := client.GetSlot(ctx, rpc.CommitmentConfirmed)
			if slotErr != nil {
				return 0, 0, fmt.Errorf("get slot: %w", slotErr)
			}
			return 0, slot, nil
		}
		return 0, 0, fmt.Errorf("get token balance: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, 0, fmt.Errorf("empty balance response from %s", endpoint)
	}
	balance, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed balance %q from %s", out.Value.Amount, endpoint)
	}
	return balance, out.Context.Slot, nil
}

// accountNotFound matches the node's "could not find account" invalid-param
// response for wallets that never held the token.
func accountNotFound(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == -32602
	}
	return false
}
