package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.aimuz.me/iris/archive"
)

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	recs := []archive.Record{{
		ID:         "0123456789abcdef",
		StartedAt:  time.Now(),
		Outcome:    archive.OutcomeDone,
		Transcript: "what is\nthis   error",
		Latency:    archive.Latency{Listening: 120 * time.Millisecond, Done: 3 * time.Second},
	}}
	if err := printSessions(&buf, recs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"01234567", "done", "120ms", "3000ms", "what is this error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printSessions(&buf, nil)
	if strings.TrimSpace(buf.String()) != "no sessions" {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestSetupLogging(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		if err := setupLogging(level); err != nil {
			t.Errorf("setupLogging(%q) error = %v", level, err)
		}
	}
	if err := setupLogging("loud"); err == nil {
		t.Error("setupLogging(loud) should fail")
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file error = %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("IRIS_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IRIS_TEST_KEY", "")
	os.Unsetenv("IRIS_TEST_KEY")
	if err := loadEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("IRIS_TEST_KEY"); got != "from-file" {
		t.Errorf("IRIS_TEST_KEY = %q", got)
	}
}

func TestSessionsCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := archive.Open(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	store.Put(archive.Record{ID: "abc", StartedAt: time.Now(), Outcome: archive.OutcomeDone, Transcript: "hello"})
	store.Close()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"sessions", "--dir", dir, "--env-file", ""})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q", buf.String())
	}
}
