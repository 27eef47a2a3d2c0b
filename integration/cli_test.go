//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// binaryPath builds the CLI binary once per test into a temp directory
func binaryPath(t *testing.T) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "claude-node")
	cmd := exec.Command("go", "build", "-o", out, "../cmd/claude-node")
	if combined, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, combined)
	}
	return out
}

// createTestConfig creates a temporary config file for testing
func createTestConfig(t *testing.T, cliPath, dbPath string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[general]
database_path = "` + dbPath + `"

[claude]
cli_path = "` + cliPath + `"
default_timeout = 30

[anthropic]
auth_method = "cli"

[logging]
level = "warn"
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

// TestCLI_RunAndHistory runs a batch against the fake CLI and reads it back
func TestCLI_RunAndHistory(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, FakeClaudeCLI(t), TempDBPath(t))
	items := WriteFile(t, "items.yaml", "- prompt: first\n- prompt: second\n  outputFormat: text\n")

	cmd := exec.Command(binary, "run", "--config", configPath, "--items", items)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("run command failed: %v\n%s", err, out)
	}

	var results []struct {
		JSON       map[string]any `json:"json"`
		PairedItem int            `json:"pairedItem"`
	}
	if err := json.Unmarshal(out, &results); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].JSON["success"] != true || results[0].JSON["result"] != "fake done" {
		t.Errorf("structured result = %v", results[0].JSON)
	}
	if _, ok := results[0].JSON["metrics"]; !ok {
		t.Errorf("structured result lacks metrics: %v", results[0].JSON)
	}
	if results[1].JSON["result"] != "fake done" || results[1].PairedItem != 1 {
		t.Errorf("text result = %+v", results[1])
	}

	history := exec.Command(binary, "history", "--config", configPath)
	hout, err := history.CombinedOutput()
	if err != nil {
		t.Fatalf("history command failed: %v\n%s", err, hout)
	}
	output := string(hout)
	if !strings.Contains(output, "OPERATION") || strings.Count(output, "query") != 2 {
		t.Errorf("Expected two query runs in history, got: %s", output)
	}
}

// TestCLI_RunAbortsOnEmptyPrompt checks the fatal path exits non-zero
func TestCLI_RunAbortsOnEmptyPrompt(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, FakeClaudeCLI(t), TempDBPath(t))

	cmd := exec.Command(binary, "run", "--config", configPath, "--no-history")
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure, got: %s", out)
	}
	if !strings.Contains(string(out), "Claude Code execution failed") {
		t.Errorf("unexpected error output: %s", out)
	}
}

// TestCLI_RunContinueOnFail emits an error record instead of failing
func TestCLI_RunContinueOnFail(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, FakeClaudeCLI(t), TempDBPath(t))

	cmd := exec.Command(binary, "run", "--config", configPath, "--no-history", "--continue-on-fail")
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("run command failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), `"errorType": "execution_error"`) {
		t.Errorf("Expected an error record, got: %s", out)
	}
}

// TestCLI_Describe prints the node definition
func TestCLI_Describe(t *testing.T) {
	binary := binaryPath(t)

	out, err := exec.Command(binary, "describe", "node").Output()
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if !strings.Contains(string(out), `"name": "claudeCodeEnhanced"`) {
		t.Errorf("unexpected description: %s", out)
	}
}
