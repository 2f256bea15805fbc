package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if config.Addr != ":8321" {
		t.Fatalf("expected the default addr, got %q", config.Addr)
	}
	if config.AgentStorePath == "" || config.ConversationStorePath == "" {
		t.Fatalf("expected default store paths, got %+v", config)
	}
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saylem.yaml")
	content := []byte(`
addr: ":9000"
speech_to_text:
  provider: whisper
  endpoint: http://localhost:5000/transcribe
llm:
  provider: ollama
  endpoint: http://localhost:11434
  model: llama3
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("expected the file to load, got %v", err)
	}
	if config.Addr != ":9000" {
		t.Fatalf("expected the file addr, got %q", config.Addr)
	}
	if config.SpeechToText.Provider != "whisper" {
		t.Fatalf("expected whisper, got %q", config.SpeechToText.Provider)
	}
	if config.LLM.Model != "llama3" {
		t.Fatalf("expected llama3, got %q", config.LLM.Model)
	}
	// Untouched keys keep their defaults.
	if config.AgentStorePath != "saylem-agents.db" {
		t.Fatalf("expected the default store path, got %q", config.AgentStorePath)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SAYLEM_ADDR", ":7777")
	t.Setenv("SAYLEM_AGENT_STORE", "/tmp/agents.db")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected env overrides to load, got %v", err)
	}
	if config.Addr != ":7777" {
		t.Fatalf("expected the env addr, got %q", config.Addr)
	}
	if config.AgentStorePath != "/tmp/agents.db" {
		t.Fatalf("expected the env store path, got %q", config.AgentStorePath)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saylem.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: grok\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected an unknown provider to be rejected")
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected a missing file to fail")
	}
}
