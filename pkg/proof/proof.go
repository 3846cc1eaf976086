package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidProof covers every authentication failure: bad signature, stale
// or foreign nonce, target mismatch. Callers must not read it as ineligible.
var ErrInvalidProof = errors.New("invalid proof")

const DefaultNonceTTL = 5 * time.Minute

// NonceStore issues single-use join nonces scoped to (vault, wallet).
// Consume returns true exactly once per issued nonce and false after expiry.
type NonceStore interface {
	Issue(ctx context.Context, vault, wallet, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, vault, wallet, nonce string) (bool, error)
}

// JoinMessage is the structured payload a wallet signs to request a join.
// The signature covers the exact message bytes, not a re-serialization.
type JoinMessage struct {
	Vault    string `json:"vault"`
	GroupID  string `json:"group_id,omitempty"`
	Wallet   string `json:"wallet"`
	Nonce    string `json:"nonce"`
	IssuedAt string `json:"issued_at,omitempty"`
}

// VerifyJoinProof authenticates a join request: parses the signed message,
// verifies the ed25519 signature against the wallet key named inside it,
// requires the message to target expectedVault, and consumes the nonce.
// Returns the wallet address on success.
func VerifyJoinProof(ctx context.Context, message, signature, expectedVault string, nonces NonceStore) (string, error) {
	dec := json.NewDecoder(strings.NewReader(message))
	dec.DisallowUnknownFields()
	var m JoinMessage
	if err := dec.Decode(&m); err != nil {
		return "", fmt.Errorf("%w: malformed message", ErrInvalidProof)
	}
	if m.Wallet == "" || m.Nonce == "" || m.Vault == "" {
		return "", fmt.Errorf("%w: missing fields", ErrInvalidProof)
	}

	wallet, err := solana.PublicKeyFromBase58(m.Wallet)
	if err != nil {
		return "", fmt.Errorf("%w: wallet address", ErrInvalidProof)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("%w: signature encoding", ErrInvalidProof)
	}
	if !wallet.Verify([]byte(message), sig) {
		return "", fmt.Errorf("%w: signature mismatch", ErrInvalidProof)
	}

	if m.Vault != expectedVault {
		return "", fmt.Errorf("%w: target mismatch", ErrInvalidProof)
	}

	ok, err := nonces.Consume(ctx, m.Vault, m.Wallet, m.Nonce)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: stale or unknown nonce", ErrInvalidProof)
	}
	return m.Wallet, nil
}
