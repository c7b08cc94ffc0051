package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanlink/humanlink/internal/interaction"
)

func TestParseOptions(t *testing.T) {
	t.Run("value defaults to label", func(t *testing.T) {
		opts, err := parseOptions([]any{
			map[string]any{"label": "Staging"},
			map[string]any{"label": "Production", "value": "prod", "is_default": true},
		})
		require.NoError(t, err)
		require.Len(t, opts, 2)
		assert.Equal(t, "Staging", opts[0].Value)
		assert.Equal(t, "prod", opts[1].Value)
		assert.True(t, opts[1].IsDefault)
	})

	t.Run("empty list rejected", func(t *testing.T) {
		_, err := parseOptions([]any{})
		assert.Error(t, err)
	})

	t.Run("non-array rejected", func(t *testing.T) {
		_, err := parseOptions("not options")
		assert.Error(t, err)
	})
}

func TestFormatOutcome(t *testing.T) {
	choiceReq := &interaction.Request{
		Message: "Pick a color",
		Type:    interaction.TypeSingleChoice,
		Options: []interaction.Option{
			{Label: "Red", Value: "red"},
			{Label: "Blue", Value: "blue"},
		},
	}

	t.Run("selection reports the label", func(t *testing.T) {
		out := formatOutcome(choiceReq, interaction.NewSuccess("blue"))
		assert.Contains(t, out, "Blue")
		assert.Contains(t, out, "Pick a color")
	})

	t.Run("custom input reported as typed answer", func(t *testing.T) {
		out := formatOutcome(choiceReq, interaction.NewCustomInput("teal"))
		assert.Contains(t, out, "typed their own answer")
		assert.Contains(t, out, "teal")
	})

	t.Run("free text", func(t *testing.T) {
		req := &interaction.Request{Message: "Name it", Type: interaction.TypeTextInput}
		out := formatOutcome(req, interaction.NewText("aurora"))
		assert.Contains(t, out, "aurora")
	})

	t.Run("notify acknowledgement", func(t *testing.T) {
		req := &interaction.Request{Message: "Done", Type: interaction.TypeNotify}
		out := formatOutcome(req, interaction.NewSuccess())
		assert.Contains(t, out, "acknowledged")
	})

	t.Run("timeout and dismissal are distinct", func(t *testing.T) {
		timedOut := formatOutcome(choiceReq, interaction.NewCancelled(true))
		assert.Contains(t, timedOut, "timed out")

		dismissed := formatOutcome(choiceReq, interaction.NewCancelled(false))
		assert.Contains(t, dismissed, "dismissed")
	})
}
