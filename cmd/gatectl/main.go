package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wenakita/CreatorVault-sub008/pkg/canonhash"
	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
	"github.com/wenakita/CreatorVault-sub008/pkg/gateclient"
)

const usage = "usage: gatectl config push --file <path> --server <url> [--actor <wallet>] | gatectl config hash --file <path> | gatectl check --server <url> --vault <addr> --wallet <addr>"

func main() {
	if len(os.Args) < 2 {
		failSummary("", usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "config":
		runConfig(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	default:
		failSummary("", "unknown command")
		os.Exit(2)
	}
}

func runConfig(args []string) {
	if len(args) < 1 {
		failSummary("", usage)
		os.Exit(2)
	}
	switch args[0] {
	case "push":
		runConfigPush(args[1:])
	case "hash":
		runConfigHash(args[1:])
	default:
		failSummary("", usage)
		os.Exit(2)
	}
}

func runConfigPush(args []string) {
	fs := flag.NewFlagSet("config push", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "path to vault config json")
	server := fs.String("server", "", "gate service base url")
	actor := fs.String("actor", "", "acting wallet address")
	if err := fs.Parse(args); err != nil {
		failSummary("", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*file) == "" || strings.TrimSpace(*server) == "" {
		failSummary("", "both --file and --server are required")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		failSummary("", "read config failed: "+err.Error())
		os.Exit(1)
	}
	cfg, err := domain.ParseVaultConfig(raw)
	if err != nil {
		failSummary("", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	stored, err := gateclient.New(*server, os.Getenv("GATE_BEARER")).UpsertVault(ctx, cfg, strings.TrimSpace(*actor))
	if err != nil {
		failSummary(cfg.VaultAddress, err.Error())
		os.Exit(1)
	}
	passSummary(stored.VaultAddress, map[string]any{
		"config_hash":    stored.ConfigHash,
		"config_version": stored.ConfigVersion,
		"group_id":       stored.GroupID,
	})
}

func runConfigHash(args []string) {
	fs := flag.NewFlagSet("config hash", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "path to vault config json")
	if err := fs.Parse(args); err != nil {
		failSummary("", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*file) == "" {
		failSummary("", "--file is required")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		failSummary("", "read config failed: "+err.Error())
		os.Exit(1)
	}
	cfg, err := domain.ParseVaultConfig(raw)
	if err != nil {
		failSummary("", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		failSummary(cfg.VaultAddress, err.Error())
		os.Exit(1)
	}
	hash, _, err := canonhash.SumObject(cfg.ConfigDocument())
	if err != nil {
		failSummary(cfg.VaultAddress, err.Error())
		os.Exit(1)
	}
	passSummary(cfg.VaultAddress, map[string]any{"config_hash": hash})
}

func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "", "gate service base url")
	vault := fs.String("vault", "", "vault address")
	wallet := fs.String("wallet", "", "wallet address")
	if err := fs.Parse(args); err != nil {
		failSummary("", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*server) == "" || strings.TrimSpace(*vault) == "" || strings.TrimSpace(*wallet) == "" {
		failSummary("", "--server, --vault and --wallet are required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	status, err := gateclient.New(*server, os.Getenv("GATE_BEARER")).JoinRequestStatus(ctx, *vault, *wallet)
	if err != nil {
		failSummary(*vault, err.Error())
		os.Exit(1)
	}
	passSummary(*vault, map[string]any{
		"wallet":    *wallet,
		"status":    status.Status,
		"reason":    status.Reason,
		"action_id": status.ActionID,
	})
}

func passSummary(vault string, fields map[string]any) {
	out := map[string]any{
		"status":        "PASS",
		"vault":         vault,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}

func failSummary(vault, reason string) {
	b, _ := json.Marshal(map[string]any{
		"status":        "FAIL",
		"vault":         vault,
		"reason":        reason,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339),
	})
	fmt.Println(string(b))
}
