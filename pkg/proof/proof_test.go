package proof

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

const testVault = "So11111111111111111111111111111111111111112"

func signedJoin(t *testing.T, key solana.PrivateKey, vault, nonce string) (string, string) {
	t.Helper()
	msg, err := json.Marshal(JoinMessage{
		Vault:    vault,
		GroupID:  "grp_main",
		Wallet:   key.PublicKey().String(),
		Nonce:    nonce,
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return string(msg), sig.String()
}

func issuedNonce(t *testing.T, store NonceStore, vault, wallet string) string {
	t.Helper()
	nonce := "n_test_" + wallet[:8]
	if err := store.Issue(context.Background(), vault, wallet, nonce, DefaultNonceTTL); err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	return nonce
}

func TestVerifyJoinProofHappyPath(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	store := NewMemoryNonceStore()
	nonce := issuedNonce(t, store, testVault, key.PublicKey().String())
	msg, sig := signedJoin(t, key, testVault, nonce)

	wallet, err := VerifyJoinProof(context.Background(), msg, sig, testVault, store)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if wallet != key.PublicKey().String() {
		t.Fatalf("recovered %s, want %s", wallet, key.PublicKey())
	}
}

func TestVerifyJoinProofRejectsForeignSignature(t *testing.T) {
	key, _ := solana.NewRandomPrivateKey()
	other, _ := solana.NewRandomPrivateKey()
	store := NewMemoryNonceStore()
	nonce := issuedNonce(t, store, testVault, key.PublicKey().String())
	msg, _ := signedJoin(t, key, testVault, nonce)
	_, foreignSig := signedJoin(t, other, testVault, nonce)

	if _, err := VerifyJoinProof(context.Background(), msg, foreignSig, testVault, store); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyJoinProofRejectsTargetMismatch(t *testing.T) {
	key, _ := solana.NewRandomPrivateKey()
	store := NewMemoryNonceStore()
	nonce := issuedNonce(t, store, testVault, key.PublicKey().String())
	msg, sig := signedJoin(t, key, testVault, nonce)

	otherVault := "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	if _, err := VerifyJoinProof(context.Background(), msg, sig, otherVault, store); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyJoinProofNonceSingleUse(t *testing.T) {
	key, _ := solana.NewRandomPrivateKey()
	store := NewMemoryNonceStore()
	nonce := issuedNonce(t, store, testVault, key.PublicKey().String())
	msg, sig := signedJoin(t, key, testVault, nonce)

	if _, err := VerifyJoinProof(context.Background(), msg, sig, testVault, store); err != nil {
		t.Fatalf("first use should pass: %v", err)
	}
	if _, err := VerifyJoinProof(context.Background(), msg, sig, testVault, store); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("replay got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyJoinProofRejectsUnissuedNonce(t *testing.T) {
	key, _ := solana.NewRandomPrivateKey()
	store := NewMemoryNonceStore()
	msg, sig := signedJoin(t, key, testVault, "n_never_issued")

	if _, err := VerifyJoinProof(context.Background(), msg, sig, testVault, store); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyJoinProofRejectsMalformedMessage(t *testing.T) {
	store := NewMemoryNonceStore()
	if _, err := VerifyJoinProof(context.Background(), "join please", "sig", testVault, store); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestMemoryNonceStoreExpiry(t *testing.T) {
	store := NewMemoryNonceStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Issue(context.Background(), testVault, "w", "n1", time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}
	current = current.Add(2 * time.Minute)
	ok, err := store.Consume(context.Background(), testVault, "w", "n1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ok {
		t.Fatalf("expired nonce must not be consumable")
	}
}
