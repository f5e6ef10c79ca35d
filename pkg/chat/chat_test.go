package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConversationShape(t *testing.T) {
	msgs := NewConversation("be helpful", "weather in London?")
	require.Len(t, msgs, 2)
	require.Equal(t, RoleSystem, msgs[0].Role)
	require.Equal(t, RoleUser, msgs[1].Role)
	require.Equal(t, "weather in London?", msgs[1].Content)
}

func TestAppendToolRoundGrowsByTwo(t *testing.T) {
	msgs := NewConversation("sys", "user")
	before := len(msgs)
	msgs = AppendToolRound(msgs, `{"tool_calls":[{"name":"t","arguments":{}}]}`, `{"ok":true}`)
	require.Len(t, msgs, before+2)
	require.Equal(t, RoleAssistant, msgs[before].Role)
	require.Equal(t, RoleTool, msgs[before+1].Role)
}

func TestToDecoderMessagesPreservesOrderAndContent(t *testing.T) {
	msgs := NewConversation("sys", "user")
	out := ToDecoderMessages(msgs)
	require.Len(t, out, 2)
	require.Equal(t, "system", out[0].Role)
	require.Equal(t, "sys", out[0].Content)
	require.Equal(t, "user", out[1].Role)
}
