package chatbot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanlink/humanlink/internal/interaction"
)

func TestTokenRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		action string
		value  string
		want   string
	}{
		{"no value", "ab12cd34", "done", "", "ab12cd34:done"},
		{"with value", "ab12cd34", "opt", "yes", "ab12cd34:opt:yes"},
		{"value with separator", "ab12cd34", "opt", "a:b", "ab12cd34:opt:a:b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeToken(tt.id, tt.action, tt.value)
			assert.Equal(t, tt.want, encoded)

			tok, ok := parseToken(encoded)
			require.True(t, ok)
			assert.Equal(t, tt.id, tok.id)
			assert.Equal(t, tt.action, tok.action)
			assert.Equal(t, tt.value, tok.value)
		})
	}
}

func TestParseTokenMalformed(t *testing.T) {
	for _, raw := range []string{"", "noseparator", ":opt", "id:", ":"} {
		_, ok := parseToken(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestRenderPromptConfirm(t *testing.T) {
	req := &interaction.Request{
		Title:   "Deploy",
		Message: "Ship to production?",
		Type:    interaction.TypeConfirm,
		Options: []interaction.Option{
			{Label: "Yes", Value: "yes", IsDefault: true},
			{Label: "No", Value: "no"},
		},
		IsCancellable: true,
	}

	text, actions := renderPrompt("id1", req, nil, false, "")
	assert.Contains(t, text, "Deploy")
	assert.Contains(t, text, "Ship to production?")
	require.Len(t, actions, 3)
	assert.Equal(t, "Yes *", actions[0].Label)
	assert.Equal(t, "id1:opt:yes", actions[0].Token)
	assert.Equal(t, "id1:opt:no", actions[1].Token)
	assert.Equal(t, "Cancel", actions[2].Label)
	assert.Equal(t, "id1:cancel", actions[2].Token)
}

func TestRenderPromptMultiChoice(t *testing.T) {
	req := &interaction.Request{
		Message: "Pick platforms",
		Type:    interaction.TypeMultiChoice,
		Options: []interaction.Option{
			{Label: "Linux", Value: "linux"},
			{Label: "macOS", Value: "mac"},
		},
	}

	text, actions := renderPrompt("id1", req, []string{"mac"}, false, "Select at least 1 option(s) before pressing Done.")
	assert.Contains(t, text, "Select at least 1")
	require.Len(t, actions, 3)
	assert.Equal(t, "Linux", actions[0].Label)
	assert.Equal(t, "[x] macOS", actions[1].Label)
	assert.Equal(t, "Done", actions[2].Label)
	assert.Equal(t, "id1:done", actions[2].Token)
}

func TestRenderPromptCustomInputEscape(t *testing.T) {
	req := &interaction.Request{
		Message:          "Pick a color",
		Type:             interaction.TypeChoiceWithText,
		AllowCustomInput: true,
		Options: []interaction.Option{
			{Label: "Red", Value: "red"},
		},
	}

	_, actions := renderPrompt("id1", req, nil, false, "")
	require.Len(t, actions, 2)
	assert.Equal(t, "Type my own answer", actions[1].Label)
	assert.Equal(t, "id1:text", actions[1].Token)

	// After the escape hatch is pressed the prompt switches to text entry.
	text, actions := renderPrompt("id1", req, nil, true, "")
	assert.Contains(t, text, "Reply with your answer")
	assert.Empty(t, actions)
}

func TestRenderOutcome(t *testing.T) {
	req := &interaction.Request{
		Message: "Pick",
		Type:    interaction.TypeSingleChoice,
		Options: []interaction.Option{{Label: "Blue", Value: "blue"}},
	}

	t.Run("answered shows label", func(t *testing.T) {
		out := renderOutcome(req, interaction.NewSuccess("blue"))
		assert.Contains(t, out, "Answered: Blue")
	})

	t.Run("unknown value falls back to raw", func(t *testing.T) {
		out := renderOutcome(req, interaction.NewSuccess("teal"))
		assert.Contains(t, out, "Answered: teal")
	})

	t.Run("timed out", func(t *testing.T) {
		out := renderOutcome(req, interaction.NewCancelled(true))
		assert.Contains(t, out, "Expired")
	})

	t.Run("cancelled", func(t *testing.T) {
		out := renderOutcome(req, interaction.NewCancelled(false))
		assert.True(t, strings.HasSuffix(out, "Cancelled."))
	})
}

func TestRenderProgress(t *testing.T) {
	assert.Equal(t, "Build: 50% (5/10)", renderProgress("Build", 5, 10, ""))
	assert.Equal(t, "Build: 100% (12/10)", renderProgress("Build", 12, 10, ""))
	assert.Equal(t, "Build: 3 - compiling", renderProgress("Build", 3, 0, "compiling"))
	assert.Equal(t, "Build: finished", renderProgressDone("Build"))
}
