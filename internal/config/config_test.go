package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, ".state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, ".cache"))
}

func TestDefaults(t *testing.T) {
	isolateHome(t)

	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" {
		t.Fatalf("output = %q, want json", settings.OutputMode)
	}
	if settings.Timeout != 10*time.Second || settings.Retries != 2 {
		t.Fatalf("timeout/retries = %v/%d", settings.Timeout, settings.Retries)
	}
	if settings.ChainID != 1 {
		t.Fatalf("chain id = %d, want 1", settings.ChainID)
	}
	if settings.MaxTxAmount != "1000" {
		t.Fatalf("max tx amount = %q", settings.MaxTxAmount)
	}
	if len(settings.ApprovedAssets) != 2 {
		t.Fatalf("approved assets = %v", settings.ApprovedAssets)
	}
	if settings.ConfirmTimeout != 2*time.Minute || settings.PollInterval != 2*time.Second {
		t.Fatalf("pipeline timings = %v/%v", settings.ConfirmTimeout, settings.PollInterval)
	}
	if !settings.CacheEnabled {
		t.Fatal("cache disabled by default")
	}
}

func TestFileConfigOverridesDefaults(t *testing.T) {
	isolateHome(t)
	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "walletctl")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yaml := `
output: plain
timeout: 30s
chain:
  id: 8453
  rpc_url: https://base.example
risk:
  approved_assets: [APT]
  max_transaction_amount: "250"
pipeline:
  confirm_timeout: 45s
feed:
  url: https://feed.example/opportunities
`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" || settings.Timeout != 30*time.Second {
		t.Fatalf("output/timeout = %q/%v", settings.OutputMode, settings.Timeout)
	}
	if settings.ChainID != 8453 || settings.RPCURL != "https://base.example" {
		t.Fatalf("chain = %d %q", settings.ChainID, settings.RPCURL)
	}
	if len(settings.ApprovedAssets) != 1 || settings.ApprovedAssets[0] != "APT" {
		t.Fatalf("approved assets = %v", settings.ApprovedAssets)
	}
	if settings.MaxTxAmount != "250" || settings.ConfirmTimeout != 45*time.Second {
		t.Fatalf("risk/pipeline = %q/%v", settings.MaxTxAmount, settings.ConfirmTimeout)
	}
	if settings.FeedURL != "https://feed.example/opportunities" {
		t.Fatalf("feed url = %q", settings.FeedURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	isolateHome(t)
	t.Setenv("WALLETCTL_MAX_TX_AMOUNT", "42")
	t.Setenv("WALLETCTL_APPROVED_ASSETS", "apt, usdc")
	t.Setenv("WALLETCTL_CHAIN_ID", "10")
	t.Setenv("WALLETCTL_NO_CACHE", "true")

	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.MaxTxAmount != "42" || settings.ChainID != 10 {
		t.Fatalf("env not applied: %q %d", settings.MaxTxAmount, settings.ChainID)
	}
	if len(settings.ApprovedAssets) != 2 {
		t.Fatalf("approved assets = %v", settings.ApprovedAssets)
	}
	if settings.CacheEnabled {
		t.Fatal("WALLETCTL_NO_CACHE ignored")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	isolateHome(t)
	t.Setenv("WALLETCTL_CHAIN_ID", "10")
	t.Setenv("WALLETCTL_OUTPUT", "plain")

	settings, err := Load(GlobalFlags{JSON: true, ChainID: 42161, Timeout: "5s", Retries: 0})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" || settings.ChainID != 42161 {
		t.Fatalf("flags not applied: %q %d", settings.OutputMode, settings.ChainID)
	}
	if settings.Timeout != 5*time.Second || settings.Retries != 0 {
		t.Fatalf("timeout/retries = %v/%d", settings.Timeout, settings.Retries)
	}
}

func TestConflictingOutputFlags(t *testing.T) {
	isolateHome(t)
	if _, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1}); err == nil {
		t.Fatal("expected error for --json with --plain")
	}
}
