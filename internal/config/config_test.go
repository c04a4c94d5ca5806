package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LOCK_TIMEOUT", "")
	t.Setenv("ID_PREFIX", "")
	t.Setenv("CLASSIFIER_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected message ledger to be optional, got %q", cfg.PostgresDSN)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Fatalf("expected default lock timeout 30s, got %s", cfg.LockTimeout)
	}
	if cfg.IDPrefix != "V" {
		t.Fatalf("expected default id prefix V, got %q", cfg.IDPrefix)
	}
	if cfg.ClassifierRetries != 2 {
		t.Fatalf("expected 2 classifier attempts, got %d", cfg.ClassifierRetries)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "5s")
	t.Setenv("CLASSIFIER_RATE_PER_SEC", "0.5")
	t.Setenv("CLASSIFIER_ENABLED", "false")
	t.Setenv("MAX_REQUEST_MB", "8")

	cfg := Load()
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("expected lock timeout override, got %s", cfg.LockTimeout)
	}
	if cfg.ClassifierRatePerSec != 0.5 {
		t.Fatalf("expected rate override, got %v", cfg.ClassifierRatePerSec)
	}
	if cfg.ClassifierEnabled {
		t.Fatal("expected classifier to be disabled")
	}
	if cfg.MaxRequestBytes != 8<<20 {
		t.Fatalf("expected 8MB request cap, got %d", cfg.MaxRequestBytes)
	}
}

func TestLoadIgnoresMalformedDuration(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "soon")
	if got := Load().LockTimeout; got != 30*time.Second {
		t.Fatalf("expected fallback lock timeout, got %s", got)
	}
}

func TestLoadRulesOverridesListedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "outflow_keywords:\n  - vendor bill\n  - expense\nplaceholder_patterns:\n  - '^logo\\.png$'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules.OutflowKeywords) != 2 || rules.OutflowKeywords[0] != "vendor bill" {
		t.Fatalf("expected outflow override, got %v", rules.OutflowKeywords)
	}
	if len(rules.PlaceholderPatterns) != 1 || rules.PlaceholderPatterns[0] != `^logo\.png$` {
		t.Fatalf("expected placeholder override, got %v", rules.PlaceholderPatterns)
	}
	if len(rules.InflowKeywords) != len(domain.DefaultRules().InflowKeywords) {
		t.Fatalf("unlisted keys must keep defaults, got %v", rules.InflowKeywords)
	}
}

func TestLoadRulesWithoutFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules.FilenameStopwords) == 0 {
		t.Fatal("expected default stopwords")
	}
}

func TestLoadRulesRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("outflow_keywords: [unterminated"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected parse error")
	}
}
