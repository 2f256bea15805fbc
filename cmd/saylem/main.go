// Command saylem is an interactive console for test-calling a voice
// agent: it runs one session against the configured providers and shows
// the live state, transcript and speech amplitude.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/saylem-ai/saylem-core/core"
	"github.com/saylem-ai/saylem-core/core/agents"
	agentstore "github.com/saylem-ai/saylem-core/core/agents/sqlite"
	"github.com/saylem-ai/saylem-core/core/audio/miniaudio"
	conversationstore "github.com/saylem-ai/saylem-core/core/persistence/sqlite"
	"github.com/saylem-ai/saylem-core/server"
)

func main() {
	configPath := flag.String("config", "", "path to the service config file")
	agentID := flag.String("agent", "", "id of the agent to call; empty uses a built-in demo agent")
	actorID := flag.String("actor", "console", "actor id stamped on saved conversations")
	flag.Parse()

	if err := run(*configPath, *agentID, *actorID); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, agentID, actorID string) error {
	config, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	agent, err := resolveAgent(config, agentID)
	if err != nil {
		return err
	}

	stt, err := server.BuildSpeechToText(config.SpeechToText)
	if err != nil {
		return err
	}
	llm, err := server.BuildLLM(config.LLM)
	if err != nil {
		return err
	}
	tts, err := server.BuildTextToSpeech(config.TextToSpeech)
	if err != nil {
		return err
	}

	conversationStore, err := conversationstore.Open(config.ConversationStorePath)
	if err != nil {
		return err
	}

	device, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to open the audio device: %w", err)
	}
	defer device.Close()

	orchestrator := orchestration.New(*agent,
		orchestration.WithSpeechToTextClient(stt),
		orchestration.WithLLMClient(llm),
		orchestration.WithTextToSpeechClient(tts),
		orchestration.WithAudioInput(device),
		orchestration.WithAudioOutput(device),
		orchestration.WithConversationStore(conversationStore),
		orchestration.WithActorID(actorID),
	)

	program := tea.NewProgram(newConsole(orchestrator, *agent), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// resolveAgent loads the requested agent from the store, or falls back
// to a built-in demo agent so the console works on a fresh install.
func resolveAgent(config server.Config, agentID string) (*agents.Config, error) {
	if agentID == "" {
		return demoAgent(), nil
	}

	store, err := agentstore.Open(config.AgentStorePath)
	if err != nil {
		return nil, err
	}
	agent, err := store.Load(context.Background(), agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %q: %w", agentID, err)
	}
	return agent, nil
}

func demoAgent() *agents.Config {
	name := "Demo Agent"
	if hostname, err := os.Hostname(); err == nil {
		name = "Demo Agent @ " + hostname
	}
	return &agents.Config{
		ID:       "demo",
		Name:     name,
		Greeting: "Hello! How can I help you today?",
		Fallback: "Sorry, I did not catch that.",
		Ending:   "Thank you for calling. Goodbye!",
		IsActive: true,
		Voice:    agents.VoiceParams{SpeakingRate: 1.0},
		AI:       agents.AIParams{Temperature: 0.7},
	}
}
