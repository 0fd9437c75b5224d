package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rewardvault/core/events"
	"rewardvault/core/types"
)

const (
	testOwner = "0x00000000000000000000000000000000000000aa"
	testVault = "0x00000000000000000000000000000000000000ff"
	testAlice = "0x00000000000000000000000000000000000000a1"
	testBob   = "0x00000000000000000000000000000000000000b2"
	startTime = 1_000
	oneYear   = 31_536_000
)

type decoded struct {
	Result map[string]interface{} `json:"result"`
	Events []types.Event          `json:"events"`
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	contents := fmt.Sprintf(`DataDir = %q
Owner = %q
VaultAddress = %q
RewardStartTime = %d
RewardBudget = "20000000"

[Schedule]
Kind = "flat"
Rate = "0.10"

[Logging]
Env = "test"
`, filepath.Join(dir, "data"), testOwner, testVault, startTime)
	path := filepath.Join(dir, "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func runOK(t *testing.T, args ...string) decoded {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	var out decoded
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	return out
}

func runFail(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run(args, &stdout, &stderr))
	require.Empty(t, stdout.String())
	return stderr.String()
}

func at(ts int) string { return strconv.Itoa(ts) }

func TestVaultLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)

	out := runOK(t, "deploy", "-config", cfg, "-at", at(startTime))
	require.Equal(t, "20000000", out.Result["totalRewardBudget"])
	require.Equal(t, "flat(0.1)", out.Result["schedule"])

	runOK(t, "mint", "-config", cfg, "-to", testVault, "-amount", "20000000")
	runOK(t, "mint", "-config", cfg, "-to", testAlice, "-amount", "100000000")
	out = runOK(t, "approve", "-config", cfg, "-caller", testAlice, "-amount", "100000000")
	require.Equal(t, "100000000", out.Result["amount"])

	out = runOK(t, "deposit", "-config", cfg, "-caller", testAlice, "-amount", "100000000", "-at", at(startTime))
	require.Equal(t, "100000000", out.Result["principal"])
	require.Len(t, out.Events, 1)
	require.Equal(t, events.TypeVaultDeposited, out.Events[0].Type)

	out = runOK(t, "earned", "-config", cfg, "-account", testAlice, "-at", at(startTime+oneYear))
	require.Equal(t, "10000000", out.Result["amount"])

	out = runOK(t, "withdraw", "-config", cfg, "-caller", testAlice, "-at", at(startTime+oneYear))
	require.Equal(t, "100000000", out.Result["principal"])
	require.Equal(t, "10000000", out.Result["reward"])
	require.Equal(t, events.TypeVaultWithdrawn, out.Events[len(out.Events)-1].Type)

	out = runOK(t, "balance", "-config", cfg, "-account", testAlice)
	require.Equal(t, "110000000", out.Result["amount"])

	out = runOK(t, "stats", "-config", cfg)
	require.Equal(t, "10000000", out.Result["totalRewardClaimed"])
	require.Equal(t, "0", out.Result["totalPrincipal"])
}

func TestAdminCommands(t *testing.T) {
	cfg := writeTestConfig(t)
	runOK(t, "deploy", "-config", cfg, "-at", at(startTime))
	runOK(t, "mint", "-config", cfg, "-to", testVault, "-amount", "20000500")

	stderr := runFail(t, "sweep", "-config", cfg, "-amount", "1")
	require.Contains(t, stderr, "deposits are not paused")

	out := runOK(t, "pause", "-config", cfg)
	require.Equal(t, true, out.Result["depositsPaused"])

	out = runOK(t, "available", "-config", cfg)
	require.Equal(t, "500", out.Result["amount"])

	stderr = runFail(t, "sweep", "-config", cfg, "-caller", testBob, "-amount", "1")
	require.Contains(t, stderr, "unauthorized")
	stderr = runFail(t, "sweep", "-config", cfg, "-amount", "501")
	require.Contains(t, stderr, "insufficient funds")

	out = runOK(t, "sweep", "-config", cfg, "-amount", "500")
	require.Equal(t, "500", out.Result["amount"])
	require.Equal(t, events.TypeVaultAdminWithdrawn, out.Events[0].Type)

	out = runOK(t, "set-end-time", "-config", cfg, "-time", at(startTime+oneYear))
	require.EqualValues(t, startTime+oneYear, out.Result["rewardEndTime"])
	stderr = runFail(t, "clear-end-time", "-config", cfg)
	require.Contains(t, stderr, "deposits are paused")

	runOK(t, "unpause", "-config", cfg)
	out = runOK(t, "clear-end-time", "-config", cfg)
	require.NotContains(t, out.Result, "rewardEndTime")

	out = runOK(t, "set-lock", "-config", cfg, "-duration", "720h")
	require.EqualValues(t, 30*24*3600, out.Result["lockDuration"])
	out = runOK(t, "set-budget", "-config", cfg, "-amount", "5")
	require.Equal(t, "5", out.Result["totalRewardBudget"])

	out = runOK(t, "transfer-ownership", "-config", cfg, "-to", testBob)
	require.True(t, strings.EqualFold(testBob, out.Result["owner"].(string)))

	// Ownership persists across invocations; the default caller follows it.
	runOK(t, "pause", "-config", cfg)
	runFail(t, "unpause", "-config", cfg, "-caller", testOwner)
}

func TestDepositWithoutAllowanceFails(t *testing.T) {
	cfg := writeTestConfig(t)
	runOK(t, "deploy", "-config", cfg, "-at", at(startTime))
	runOK(t, "mint", "-config", cfg, "-to", testBob, "-amount", "10")

	stderr := runFail(t, "deposit", "-config", cfg, "-caller", testBob, "-amount", "10")
	require.Contains(t, stderr, "insufficient funds")

	out := runOK(t, "info", "-config", cfg, "-account", testBob)
	require.Equal(t, "0", out.Result["principal"])
}

func TestUsageErrors(t *testing.T) {
	require.Contains(t, runFail(t), "Usage: vaultctl")
	require.Contains(t, runFail(t, "explode"), "Unknown command: explode")

	cfg := writeTestConfig(t)
	require.Contains(t, runFail(t, "deposit", "-config", cfg, "-amount", "abc"), "invalid argument")
	require.Contains(t, runFail(t, "stats", "-config", cfg), "not deployed")
}
