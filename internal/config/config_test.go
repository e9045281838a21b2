package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Planner.DefaultMode != "optimized" || cfg.Planner.Strategy != "mip" {
		t.Fatalf("unexpected planner defaults: %+v", cfg.Planner)
	}
	if cfg.Planner.Gap != 0.005 || cfg.Planner.NodeLimit != 200000 || cfg.Planner.BacktrackMaxProjects != 16 {
		t.Fatalf("unexpected limits: %+v", cfg.Planner)
	}
	if cfg.Planner.TimeLimit.Std() != 10*time.Second {
		t.Fatalf("expected 10s time limit, got %s", cfg.Planner.TimeLimit.Std())
	}
}

func TestFromYAMLKeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := FromYAML([]byte("planner:\n  strategy: auto\n  time_limit: 2m\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Planner.Strategy != "auto" {
		t.Fatalf("strategy not applied: %+v", cfg.Planner)
	}
	if cfg.Planner.TimeLimit.Std() != 2*time.Minute {
		t.Fatalf("time limit not applied: %s", cfg.Planner.TimeLimit.Std())
	}
	if cfg.Planner.DefaultMode != "optimized" || cfg.Planner.Gap != 0.005 {
		t.Fatalf("defaults lost: %+v", cfg.Planner)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"mode":        "planner:\n  default_mode: fastest\n",
		"strategy":    "planner:\n  strategy: simulated-annealing\n",
		"gap":         "planner:\n  gap: 1.5\n",
		"node limit":  "planner:\n  node_limit: -1\n",
		"duration":    "planner:\n  time_limit: soon\n",
		"webhook url": "webhooks:\n  - url: ftp://example.com\n",
		"no url":      "webhooks:\n  - events: [plan.saved]\n",
		"empty event": "webhooks:\n  - url: https://example.com\n    events: [\"\"]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestWebhookMatching(t *testing.T) {
	off := false
	hooks := []Webhook{
		{URL: "https://a", Events: nil},
		{URL: "https://b", Events: []string{"plan.*"}},
		{URL: "https://c", Events: []string{"team.created"}},
		{URL: "https://d", Enabled: &off},
	}
	if !hooks[0].Wants("project.updated") {
		t.Fatalf("empty events should match everything")
	}
	if !hooks[1].Wants("plan.saved") || hooks[1].Wants("planner.changed") {
		t.Fatalf("prefix match wrong")
	}
	if hooks[2].Wants("team.deleted") {
		t.Fatalf("exact match wrong")
	}
	if hooks[3].Active() || !hooks[0].Active() {
		t.Fatalf("enabled flag not honored")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should give defaults: %v", err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("planner:\n  strategy: backtrack\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Planner.Strategy != "backtrack" {
		t.Fatalf("unexpected strategy %q", cfg.Planner.Strategy)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []Webhook{{URL: "https://example.com/h", Events: []string{"plan.saved"}, TimeoutSeconds: 3}}
	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	back, err := FromYAML(data)
	if err != nil {
		t.Fatalf("parse rendered: %v\n%s", err, data)
	}
	if back.Planner.TimeLimit != cfg.Planner.TimeLimit || len(back.Webhooks) != 1 || back.Webhooks[0].URL != "https://example.com/h" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
