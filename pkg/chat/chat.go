// Package chat assembles the message list driving one orchestrator turn:
// system/user composition at turn start, and the assistant/tool round
// appends that follow each executed tool call. Every message is a plain
// {role, content} pair; there are no multi-modal content parts.
package chat

import "github.com/tinytool/llmcore/pkg/decoder"

// Role is one of the four roles this protocol assembles messages for.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the ordered conversation history.
type Message struct {
	Role    Role
	Content string
}

// NewConversation composes the initial [system, user] message list for a
// turn.
func NewConversation(systemPrompt, userMessage string) []Message {
	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userMessage},
	}
}

// AppendToolRound appends the two messages produced by one executed tool
// call: an assistant message carrying the raw tool-call JSON the model
// emitted, then a tool message carrying the executor's result. Per
// spec.md's invariant, the message list grows by exactly these two entries
// per executed call.
func AppendToolRound(messages []Message, rawToolCallJSON, toolResult string) []Message {
	return append(messages,
		Message{Role: RoleAssistant, Content: rawToolCallJSON},
		Message{Role: RoleTool, Content: toolResult},
	)
}

// ToDecoderMessages converts the conversation into the decoder library's
// own message shape, kept independent of this package's Role type so
// pkg/decoder has no upward dependency on orchestration packages.
func ToDecoderMessages(messages []Message) []decoder.ChatMessage {
	out := make([]decoder.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = decoder.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
