// Package llms defines the chat contract the orchestrator holds its
// language-model providers to: a full message history in, one reply out.
package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one entry of the context window sent to a provider.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
