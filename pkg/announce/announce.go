// Package announce delivers signed join events to a collaborator-owned
// webhook endpoint. Delivery is best effort; the gate never blocks a join
// decision on it.
package announce

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"
)

type Event struct {
	VaultAddress string    `json:"vault_address"`
	GroupID      string    `json:"group_id"`
	Wallet       string    `json:"wallet"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	ActionID     string    `json:"action_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Announcer interface {
	Announce(ctx context.Context, ev Event) error
}

// Webhook signs each event body with HMAC-SHA256 over the raw bytes and
// posts it to URL. Receivers recompute the MAC with the shared secret.
type Webhook struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{URL: url, Secret: secret, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Announce(ctx context.Context, ev Event) error {
	if strings.TrimSpace(w.Secret) == "" {
		return fmt.Errorf("announce webhook secret is empty")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(w.Secret))
	_, _ = mac.Write(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(EventIDHeader, "evt_"+uuid.NewString())
	req.Header.Set(EventTypeHeader, "join."+ev.Status)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("announce webhook: http %d", resp.StatusCode)
	}
	return nil
}

// Verify recomputes the body MAC, for receivers and tests.
func Verify(headers http.Header, rawBody []byte, secret string) bool {
	sig, err := hex.DecodeString(strings.TrimSpace(headers.Get(SignatureHeader)))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), sig)
}
