package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wenakita/CreatorVault-sub008/pkg/announce"
	"github.com/wenakita/CreatorVault-sub008/pkg/chain"
	"github.com/wenakita/CreatorVault-sub008/pkg/db"
	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/pkg/httpx"
	"github.com/wenakita/CreatorVault-sub008/pkg/proof"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/command"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/eligibility"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/join"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/queue"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/registry"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/store"
	"github.com/wenakita/CreatorVault-sub008/services/gate/internal/watch"
)

func main() {
	pool := db.MustConnect()
	st := store.New(pool)

	chainID := uint32(30168)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			log.Fatalf("CHAIN_ID: %v", err)
		}
		chainID = uint32(n)
	}

	endpoints := strings.Split(os.Getenv("RPC_ENDPOINTS"), ",")
	cleaned := endpoints[:0]
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{"https://api.mainnet-beta.solana.com"}
	}

	var nonces proof.NonceStore
	if u := os.Getenv("REDIS_URL"); u != "" {
		opt, err := redis.ParseURL(u)
		if err != nil {
			log.Fatalf("REDIS_URL: %v", err)
		}
		nonces = proof.NewRedisNonceStore(redis.NewClient(opt))
	} else {
		nonces = proof.NewMemoryNonceStore()
	}

	reg := registry.New(st, chainID)
	ev := eligibility.New(chain.NewRPCReader(chain.DefaultReadTimeout), cleaned)
	q := queue.New(st)
	tracker := watch.New(st)
	var announcer announce.Announcer
	if u := os.Getenv("ANNOUNCE_URL"); u != "" {
		announcer = announce.NewWebhook(u, os.Getenv("ANNOUNCE_SECRET"))
	}

	joins := &join.Service{
		Registry:  reg,
		Evaluator: ev,
		Queue:     q,
		Tracker:   tracker,
		Nonces:    nonces,
		Audit:     st,
		Announcer: announcer,
	}
	prefix := os.Getenv("COMMAND_PREFIX")
	if prefix == "" {
		prefix = command.DefaultPrefix
	}
	interp := &command.Interpreter{Prefix: prefix, Registry: reg, Evaluator: ev, Queue: q}

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8084"
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/gate", func(api chi.Router) {

		api.Post("/vaults", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Config      domain.VaultConfig `json:"config"`
				ActorWallet string             `json:"actor_wallet"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			stored, err := reg.UpsertVaultConfig(r.Context(), req.Config, req.ActorWallet)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, stored)
		})

		api.Get("/vaults/{vault}", func(w http.ResponseWriter, r *http.Request) {
			cfg, err := reg.GetByVault(r.Context(), chi.URLParam(r, "vault"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if cfg == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "vault not configured", nil)
				return
			}
			httpx.WriteJSON(w, 200, cfg)
		})

		api.Get("/vaults/by-group/{group}", func(w http.ResponseWriter, r *http.Request) {
			cfg, err := reg.GetByGroup(r.Context(), chi.URLParam(r, "group"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if cfg == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "no vault for group", nil)
				return
			}
			httpx.WriteJSON(w, 200, cfg)
		})

		api.Post("/vaults/{vault}/lock", func(w http.ResponseWriter, r *http.Request) {
			vault := chi.URLParam(r, "vault")
			var req struct {
				Locked      bool   `json:"locked"`
				ActorWallet string `json:"actor_wallet"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			cfg, err := reg.GetByVault(r.Context(), vault)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if cfg == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "vault not configured", nil)
				return
			}
			if domain.ResolveRole(req.ActorWallet, *cfg) != domain.RoleOwner {
				httpx.WriteError(w, 403, "FORBIDDEN", "only the vault owner can lock or unlock joins", nil)
				return
			}
			if err := reg.SetJoinLocked(r.Context(), vault, req.Locked, req.ActorWallet); err != nil {
				writeDomainError(w, err)
				return
			}
			cfg, err = reg.GetByVault(r.Context(), vault)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, cfg)
		})

		api.Get("/vaults/{vault}/audit", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			entries, err := st.ListAudit(r.Context(), chi.URLParam(r, "vault"), limit)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "entries": entries})
		})

		api.Post("/join/nonce", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Vault  string `json:"vault"`
				Wallet string `json:"wallet"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			nonce, expires, err := joins.RequestNonce(r.Context(), req.Vault, req.Wallet)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"nonce": nonce, "expires_at": expires})
		})

		api.Post("/join", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Vault     string `json:"vault"`
				Message   string `json:"message"`
				Signature string `json:"signature"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			res, err := joins.Join(r.Context(), req.Vault, req.Message, req.Signature)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, res)
		})

		api.Get("/vaults/{vault}/requests/{wallet}", func(w http.ResponseWriter, r *http.Request) {
			jr, err := tracker.Status(r.Context(), chi.URLParam(r, "vault"), chi.URLParam(r, "wallet"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if jr == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "no join request", nil)
				return
			}
			httpx.WriteJSON(w, 200, jr)
		})

		api.Post("/vaults/{vault}/requests/{wallet}/cancel", func(w http.ResponseWriter, r *http.Request) {
			vault := chi.URLParam(r, "vault")
			wallet := chi.URLParam(r, "wallet")
			var req struct {
				ActorWallet string `json:"actor_wallet"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			cfg, err := reg.GetByVault(r.Context(), vault)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if cfg == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "vault not configured", nil)
				return
			}
			if !domain.ResolveRole(req.ActorWallet, *cfg).AtLeastAdmin() {
				httpx.WriteError(w, 403, "FORBIDDEN", "cancelling a join request needs an admin or the owner", nil)
				return
			}
			if err := tracker.Cancel(r.Context(), vault, wallet, req.ActorWallet); err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"vault": vault, "wallet": wallet, "status": domain.JoinCancelled})
		})

		api.Post("/command", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				GroupID string `json:"group_id"`
				Wallet  string `json:"wallet"`
				Text    string `json:"text"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			reply, handled, err := interp.Handle(r.Context(), req.GroupID, req.Wallet, req.Text)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"handled": handled, "reply": reply})
		})

		api.Get("/actions", func(w http.ResponseWriter, r *http.Request) {
			status := domain.ActionStatus(r.URL.Query().Get("status"))
			if status == "" {
				status = domain.ActionPending
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			actions, err := q.ListByStatus(r.Context(), status, limit)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "actions": actions})
		})

		api.Post("/actions/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Status domain.ActionStatus `json:"status"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := q.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"action_id": chi.URLParam(r, "id"), "status": req.Status})
		})

		api.Get("/watches/due", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			due, err := tracker.Due(r.Context(), limit)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "requests": due})
		})
	})

	log.Printf("gate service listening on :%s (chain %d, %d rpc endpoints)", port, chainID, len(cleaned))
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proof.ErrInvalidProof):
		httpx.WriteReason(w, 401, "invalid_proof", map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrVaultNotConfigured):
		httpx.WriteReason(w, 404, "vault_not_configured", nil)
	case errors.Is(err, domain.ErrUnsupportedChain):
		httpx.WriteReason(w, 400, "unsupported_chain", map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrUnsupportedGatingMode):
		httpx.WriteReason(w, 400, "unsupported_gating_mode", map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrVaultMisconfigured):
		httpx.WriteReason(w, 422, "vault_misconfigured", map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidConfig):
		httpx.WriteReason(w, 400, "invalid_config", map[string]any{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, store.ErrInvalidTransition):
		httpx.WriteError(w, 409, "INVALID_TRANSITION", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
	}
}
