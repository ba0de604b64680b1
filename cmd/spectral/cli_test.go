package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_dir = %q
media_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
`, filepath.Join(base, "data"), filepath.Join(base, "media"), filepath.Join(base, "logs"))

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncountersStatsOnEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "encounters", "stats", "-c", cfgPath)
	if err != nil {
		t.Fatalf("encounters stats: %v", err)
	}
	for _, status := range []string{"pending", "approved", "rejected", "enhanced"} {
		if !strings.Contains(out, status) {
			t.Fatalf("output missing %q:\n%s", status, out)
		}
	}
}

func TestQueueStatsOnEmptyQueue(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "queue", "stats", "-c", cfgPath)
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	for _, state := range []string{"ready", "leased", "dead"} {
		if !strings.Contains(out, state) {
			t.Fatalf("output missing %q:\n%s", state, out)
		}
	}
}

func TestQueueListOnEmptyQueue(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "queue", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Queue is empty.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output missing target path:\n%s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestEncountersListRejectsUnknownStatus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCommand(t, "encounters", "list", "--status", "bogus", "-c", cfgPath); err == nil {
		t.Fatal("expected unknown status error")
	}
}
