package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/saylem-ai/saylem-core/core"
	"github.com/saylem-ai/saylem-core/core/agents"
	"github.com/saylem-ai/saylem-core/core/conversations"
)

const amplitudeInterval = 80 * time.Millisecond

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dc4e4"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6da95")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#c6a0f6")).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8aadf4")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ed8796"))
	footerStyle = lipgloss.NewStyle().Faint(true)
	meterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#eed49f"))
)

type sessionEvent struct {
	state      *orchestration.State
	transcript string
	response   string
	err        error
	amplitude  *float64
	ended      bool
}

type eventMsg sessionEvent

type sessionStartedMsg struct{ err error }

type savedMsg struct {
	id  string
	err error
}

type console struct {
	orchestrator *orchestration.Orchestrator
	agent        agents.Config

	events chan sessionEvent
	ctx    context.Context
	cancel context.CancelFunc

	state     orchestration.State
	amplitude float64
	lastError string
	status    string

	transcript viewport.Model
	spinner    spinner.Model

	width  int
	height int
	ended  bool
}

func newConsole(orchestrator *orchestration.Orchestrator, agent agents.Config) *console {
	s := spinner.New()
	s.Spinner = spinner.Dot

	ctx, cancel := context.WithCancel(context.Background())
	return &console{
		orchestrator: orchestrator,
		agent:        agent,
		events:       make(chan sessionEvent, 64),
		ctx:          ctx,
		cancel:       cancel,
		transcript:   viewport.New(80, 20),
		spinner:      s,
	}
}

func (c *console) Init() tea.Cmd {
	return tea.Batch(c.startSession(), c.nextEvent(), c.spinner.Tick)
}

func (c *console) startSession() tea.Cmd {
	return func() tea.Msg {
		push := func(event sessionEvent) {
			select {
			case c.events <- event:
			default:
			}
		}

		err := c.orchestrator.Start(c.ctx,
			orchestration.WithStateChangedCallback(func(state orchestration.State) {
				push(sessionEvent{state: &state})
			}),
			orchestration.WithTranscriptCallback(func(transcript string) {
				push(sessionEvent{transcript: transcript})
			}),
			orchestration.WithResponseCallback(func(response string) {
				push(sessionEvent{response: response})
			}),
			orchestration.WithServiceErrorCallback(func(err error) {
				push(sessionEvent{err: err})
			}),
			orchestration.WithSessionEndedCallback(func(orchestration.Session) {
				push(sessionEvent{ended: true})
			}),
		)
		if err != nil {
			return sessionStartedMsg{err: err}
		}

		c.orchestrator.ObserveAmplitude(c.ctx, amplitudeInterval, func(level float64) {
			push(sessionEvent{amplitude: &level})
		})
		return sessionStartedMsg{}
	}
}

func (c *console) nextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-c.events)
	}
}

func (c *console) save() tea.Cmd {
	return func() tea.Msg {
		id, err := c.orchestrator.Save(context.Background())
		return savedMsg{id: id, err: err}
	}
}

func (c *console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.transcript.Width = msg.Width - 2
		c.transcript.Height = max(msg.Height-7, 3)
		c.refreshTranscript()
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			c.orchestrator.EndCall()
			c.cancel()
			return c, tea.Quit
		case " ":
			c.orchestrator.StopListening()
			return c, nil
		case "e":
			c.orchestrator.EndCall()
			return c, nil
		case "s":
			if c.ended {
				return c, c.save()
			}
			c.status = "end the call before saving"
			return c, nil
		case "d":
			c.orchestrator.DiscardRun()
			c.status = "test run discarded"
			c.refreshTranscript()
			return c, nil
		}
		var cmd tea.Cmd
		c.transcript, cmd = c.transcript.Update(msg)
		return c, cmd

	case sessionStartedMsg:
		if msg.err != nil {
			c.lastError = msg.err.Error()
			c.ended = true
		}
		return c, nil

	case savedMsg:
		if msg.err != nil {
			c.lastError = msg.err.Error()
		} else {
			c.status = "saved conversation " + msg.id
		}
		return c, nil

	case eventMsg:
		c.apply(sessionEvent(msg))
		return c, c.nextEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd
	}

	return c, nil
}

func (c *console) apply(event sessionEvent) {
	switch {
	case event.state != nil:
		c.state = *event.state
	case event.amplitude != nil:
		c.amplitude = *event.amplitude
	case event.transcript != "":
		c.refreshTranscript()
	case event.response != "":
		c.refreshTranscript()
	case event.err != nil:
		c.lastError = event.err.Error()
	case event.ended:
		c.ended = true
		c.state = orchestration.StateEnded
		c.amplitude = 0
	}
}

func (c *console) refreshTranscript() {
	width := max(c.transcript.Width, 20)

	turns := c.orchestrator.History()
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		speaker := userStyle.Render("you")
		if turn.Role == conversations.TurnRoleAssistant {
			speaker = agentStyle.Render(c.agent.Name)
		}
		lines = append(lines, speaker+": "+wordwrap.String(turn.Content, width-4))
	}

	c.transcript.SetContent(strings.Join(lines, "\n"))
	c.transcript.GotoBottom()
}

func (c *console) View() string {
	header := headerStyle.Render("saylem test call") + "  " +
		agentStyle.Render(c.agent.Name) + "  " +
		footerStyle.Render(c.orchestrator.Session().ID)

	state := stateStyle.Render(c.state.String())
	if c.state == orchestration.StateTranscribing ||
		c.state == orchestration.StateGenerating ||
		c.state == orchestration.StateSynthesizing {
		state += " " + c.spinner.View()
	}

	status := c.status
	if c.lastError != "" {
		status = errorStyle.Render(c.lastError)
	}

	footer := footerStyle.Render("space stop listening · e end call · s save · d discard · q quit")

	return strings.Join([]string{
		header,
		state + "  " + c.meter(),
		c.transcript.View(),
		status,
		footer,
	}, "\n")
}

// meter renders the playback amplitude as a fixed-width bar.
func (c *console) meter() string {
	const width = 24
	filled := int(c.amplitude * width)
	if filled > width {
		filled = width
	}
	return meterStyle.Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}
