package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HERMES_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Address != ":8081" {
		t.Fatalf("expected engine address :8081, got %s", cfg.Server.Address)
	}
	if cfg.Engine.Window != 60*time.Minute || !cfg.Engine.Serialize {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if len(cfg.Agents) != 3 {
		t.Fatalf("expected three default agents, got %d", len(cfg.Agents))
	}
	advisor, ok := cfg.Agent("backend-advisor")
	if !ok || advisor.Filter.Kind != FilterAllowList || len(advisor.Categories) != 2 {
		t.Fatalf("unexpected backend-advisor definition: %+v", advisor)
	}
	if cfg.Mongo.Database != "anomaly_data" || cfg.Mongo.Collection != "anomalies" {
		t.Fatalf("unexpected mongo defaults: %+v", cfg.Mongo)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hermes.yaml")
	content := []byte(`
server:
  address: ":9000"
engine:
  window: 30m
agents:
  - name: solo
    address: ":6000"
    categories: [Trace]
    filter:
      kind: only
      anomalies: [UNEXPECTED_RADIO_LINK_FAILURES]
    forward: raw
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HERMES_MONGO_URI", "mongodb://db:27017")
	t.Setenv("HERMES_ENGINE_SERIALIZE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.Engine.Window != 30*time.Minute {
		t.Fatalf("file values not applied: %+v %+v", cfg.Server, cfg.Engine)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "solo" {
		t.Fatalf("expected agent list replaced, got %+v", cfg.Agents)
	}
	if cfg.Mongo.URI != "mongodb://db:27017" {
		t.Fatalf("env override not applied: %s", cfg.Mongo.URI)
	}
	if cfg.Engine.Serialize {
		t.Fatalf("expected serialize disabled by env")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadAgents(t *testing.T) {
	cases := map[string]AgentConfig{
		"unknown filter": {Name: "a", Address: ":1", Categories: []string{"Trace"}, Filter: AgentFilterConfig{Kind: "regex"}},
		"empty allow":    {Name: "a", Address: ":1", Categories: []string{"Trace"}, Filter: AgentFilterConfig{Kind: FilterAllowList}},
		"no categories":  {Name: "a", Address: ":1"},
		"bad forward":    {Name: "a", Address: ":1", Categories: []string{"Trace"}, Forward: "wrapped"},
	}
	for name, agent := range cases {
		cfg := defaultConfig()
		cfg.Agents = []AgentConfig{agent}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/hermes.yaml")
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	if len(cfg.Agents) != 3 {
		t.Fatalf("expected three agents, got %d", len(cfg.Agents))
	}
	if cfg.Engine.Window.Minutes() != 60 || !cfg.Engine.Serialize {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if a, ok := cfg.Agent("user-monitor"); !ok || a.Forward != ForwardEnvelope {
		t.Fatalf("unexpected user-monitor config: %+v", a)
	}
}

func TestAgentWriteTimeoutOverride(t *testing.T) {
	t.Setenv("HERMES_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.AgentWriteTimeout != 5*time.Minute {
		t.Fatalf("expected 5m agent write timeout, got %s", cfg.Server.AgentWriteTimeout)
	}

	t.Setenv("HERMES_AGENT_WRITE_TIMEOUT", "90s")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load with override: %v", err)
	}
	if cfg.Server.AgentWriteTimeout != 90*time.Second {
		t.Fatalf("expected 90s agent write timeout, got %s", cfg.Server.AgentWriteTimeout)
	}
}
