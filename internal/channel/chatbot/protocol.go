package chatbot

import (
	"fmt"
	"strings"

	"github.com/humanlink/humanlink/internal/interaction"
)

// Action verbs embedded in outward tokens. The encoded form
// correlationId:action[:value] is the stable wire contract with surfaces.
const (
	actionSelect = "opt"    // pick one option, resolves immediately
	actionMulti  = "multi"  // toggle one option of a multi-select
	actionDone   = "done"   // finalize a multi-select
	actionText   = "text"   // escalate to free-text entry
	actionCancel = "cancel" // cancel the request
)

const tokenSep = ":"

// token is the decoded form of an action token.
type token struct {
	id     string
	action string
	value  string
}

func encodeToken(id, action, value string) string {
	if value == "" {
		return id + tokenSep + action
	}
	return id + tokenSep + action + tokenSep + value
}

// parseToken decodes correlationId:action[:value]. The value part may itself
// contain separators; only the first two are structural.
func parseToken(s string) (token, bool) {
	parts := strings.SplitN(s, tokenSep, 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return token{}, false
	}
	t := token{id: parts[0], action: parts[1]}
	if len(parts) == 3 {
		t.value = parts[2]
	}
	return t, true
}

// renderPrompt builds the outward message text and action set for a pending
// request. selected holds the multi-select accumulator; awaitingText switches
// the message into the free-text prompt; note is an optional status line
// (e.g. a min/max violation notice).
func renderPrompt(id string, req *interaction.Request, selected []string, awaitingText bool, note string) (string, []Action) {
	var b strings.Builder
	if req.Title != "" {
		b.WriteString(req.Title)
		b.WriteString("\n")
	}
	b.WriteString(req.Message)

	if awaitingText {
		b.WriteString("\n\n")
		if req.CustomInputPlaceholder != "" {
			b.WriteString(fmt.Sprintf("Reply with your answer (%s).", req.CustomInputPlaceholder))
		} else {
			b.WriteString("Reply with your answer.")
		}
		return b.String(), cancelOnly(id, req)
	}

	var actions []Action
	switch req.Type {
	case interaction.TypeNotify:
		actions = append(actions, Action{Label: "OK", Token: encodeToken(id, actionSelect, "")})

	case interaction.TypeConfirm, interaction.TypeSingleChoice:
		for _, opt := range req.Options {
			actions = append(actions, Action{Label: optionLabel(opt), Token: encodeToken(id, actionSelect, opt.Value)})
		}

	case interaction.TypeMultiChoice:
		chosen := make(map[string]bool, len(selected))
		for _, v := range selected {
			chosen[v] = true
		}
		for _, opt := range req.Options {
			label := optionLabel(opt)
			if chosen[opt.Value] {
				label = "[x] " + label
			}
			actions = append(actions, Action{Label: label, Token: encodeToken(id, actionMulti, opt.Value)})
		}
		actions = append(actions, Action{Label: "Done", Token: encodeToken(id, actionDone, "")})

	case interaction.TypeTextInput:
		b.WriteString("\n\n")
		if req.CustomInputPlaceholder != "" {
			b.WriteString(fmt.Sprintf("Reply with your answer (%s).", req.CustomInputPlaceholder))
		} else {
			b.WriteString("Reply with your answer.")
		}

	case interaction.TypeChoiceWithText:
		for _, opt := range req.Options {
			actions = append(actions, Action{Label: optionLabel(opt), Token: encodeToken(id, actionSelect, opt.Value)})
		}
	}

	if req.AllowCustomInput && req.Type != interaction.TypeTextInput {
		actions = append(actions, Action{Label: "Type my own answer", Token: encodeToken(id, actionText, "")})
	}
	if req.IsCancellable {
		actions = append(actions, Action{Label: "Cancel", Token: encodeToken(id, actionCancel, "")})
	}

	if note != "" {
		b.WriteString("\n\n")
		b.WriteString(note)
	}
	return b.String(), actions
}

func cancelOnly(id string, req *interaction.Request) []Action {
	if !req.IsCancellable {
		return nil
	}
	return []Action{{Label: "Cancel", Token: encodeToken(id, actionCancel, "")}}
}

func optionLabel(opt interaction.Option) string {
	if opt.IsDefault {
		return opt.Label + " *"
	}
	return opt.Label
}

// renderOutcome builds the inert text an answered, cancelled, or expired
// prompt is edited to, so stale taps are visibly rejected.
func renderOutcome(req *interaction.Request, resp *interaction.Response) string {
	var status string
	switch {
	case resp.TimedOut:
		status = "Expired without an answer."
	case resp.Cancelled:
		status = "Cancelled."
	case resp.CustomInput != "":
		status = "Answered: " + resp.CustomInput
	case resp.TextValue != "":
		status = "Answered: " + resp.TextValue
	case len(resp.SelectedValues) > 0:
		status = "Answered: " + strings.Join(labelsFor(req, resp.SelectedValues), ", ")
	default:
		status = "Acknowledged."
	}

	var b strings.Builder
	if req.Title != "" {
		b.WriteString(req.Title)
		b.WriteString("\n")
	}
	b.WriteString(req.Message)
	b.WriteString("\n\n")
	b.WriteString(status)
	return b.String()
}

func labelsFor(req *interaction.Request, values []string) []string {
	byValue := make(map[string]string, len(req.Options))
	for _, opt := range req.Options {
		byValue[opt.Value] = opt.Label
	}
	labels := make([]string, 0, len(values))
	for _, v := range values {
		if label, ok := byValue[v]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, v)
		}
	}
	return labels
}

// renderProgress formats an in-flight progress message.
func renderProgress(name string, current, total int, status string) string {
	var b strings.Builder
	b.WriteString(name)
	if total > 0 {
		pct := current * 100 / total
		if pct > 100 {
			pct = 100
		}
		b.WriteString(fmt.Sprintf(": %d%% (%d/%d)", pct, current, total))
	} else {
		b.WriteString(fmt.Sprintf(": %d", current))
	}
	if status != "" {
		b.WriteString(" - ")
		b.WriteString(status)
	}
	return b.String()
}

// renderProgressDone formats the terminal edit of a progress message.
func renderProgressDone(name string) string {
	return name + ": finished"
}
