package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values resolve in priority
// order: defaults, then the YAML file, then environment overrides.
// Provider API keys are never part of the file; the provider clients
// read them from the environment themselves.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	AgentStorePath        string `yaml:"agent_store_path"`
	ConversationStorePath string `yaml:"conversation_store_path"`

	SpeechToText ProviderConfig `yaml:"speech_to_text"`
	LLM          ProviderConfig `yaml:"llm"`
	TextToSpeech ProviderConfig `yaml:"text_to_speech"`
}

// ProviderConfig selects and points at one provider backend.
type ProviderConfig struct {
	// Provider names the backend: deepgram, whisper, openai, ollama or
	// piper. Empty leaves the concern unconfigured.
	Provider string `yaml:"provider"`
	// Endpoint overrides the provider's default URL; required for the
	// self-hosted backends (whisper, ollama, piper).
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
}

func DefaultConfig() Config {
	return Config{
		Addr:                  ":8321",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		ShutdownTimeout:       10 * time.Second,
		AgentStorePath:        "saylem-agents.db",
		ConversationStorePath: "saylem-conversations.db",
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty
// path skips the file stage, leaving defaults plus env overrides.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("SAYLEM_ADDR"); addr != "" {
		config.Addr = addr
	}
	if path := os.Getenv("SAYLEM_AGENT_STORE"); path != "" {
		config.AgentStorePath = path
	}
	if path := os.Getenv("SAYLEM_CONVERSATION_STORE"); path != "" {
		config.ConversationStorePath = path
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	for _, provider := range []struct {
		name   string
		config ProviderConfig
		known  []string
	}{
		{"speech_to_text", c.SpeechToText, []string{"", "deepgram", "whisper"}},
		{"llm", c.LLM, []string{"", "openai", "ollama"}},
		{"text_to_speech", c.TextToSpeech, []string{"", "deepgram", "piper"}},
	} {
		known := false
		for _, name := range provider.known {
			if provider.config.Provider == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown %s provider %q", provider.name, provider.config.Provider)
		}
	}
	return nil
}
