// Package interaction defines the request/response model for discrete human
// decisions: acknowledge a notice, confirm yes/no, pick one or many options,
// type free text, or pick-or-type. Values are built by the caller, handed to
// the orchestrator, and never mutated afterwards.
package interaction

import (
	"fmt"
	"time"
)

// Type identifies the kind of interaction requested.
type Type string

const (
	// TypeNotify shows a notice the user acknowledges.
	TypeNotify Type = "notify"
	// TypeConfirm asks a yes/no question.
	TypeConfirm Type = "confirm"
	// TypeSingleChoice asks the user to pick exactly one option.
	TypeSingleChoice Type = "single_choice"
	// TypeMultiChoice asks the user to pick several options.
	TypeMultiChoice Type = "multi_choice"
	// TypeTextInput asks for free text.
	TypeTextInput Type = "text_input"
	// TypeChoiceWithText asks the user to pick an option or type their own answer.
	TypeChoiceWithText Type = "choice_with_text"
)

// String returns the wire name of the interaction type.
func (t Type) String() string {
	return string(t)
}

// Valid reports whether t is a known interaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeNotify, TypeConfirm, TypeSingleChoice, TypeMultiChoice, TypeTextInput, TypeChoiceWithText:
		return true
	}
	return false
}

// HasOptions reports whether the type carries a non-empty option list.
func (t Type) HasOptions() bool {
	switch t {
	case TypeConfirm, TypeSingleChoice, TypeMultiChoice, TypeChoiceWithText:
		return true
	}
	return false
}

// Option is a single selectable choice presented to the user.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"` // opaque identifier returned on selection
	IsDefault   bool   `json:"is_default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request describes one interaction to render. It is immutable once handed to
// the orchestrator and has no lifecycle beyond the single call.
type Request struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Type    Type     `json:"type"`
	Options []Option `json:"options,omitempty"`

	// Timeout bounds the interaction; zero means no per-request deadline.
	Timeout time.Duration `json:"timeout,omitempty"`

	AllowCustomInput       bool   `json:"allow_custom_input,omitempty"`
	CustomInputPlaceholder string `json:"custom_input_placeholder,omitempty"`
	IsCancellable          bool   `json:"is_cancellable,omitempty"`

	// MinSelections and MaxSelections are meaningful only for TypeMultiChoice.
	MinSelections int `json:"min_selections,omitempty"`
	MaxSelections int `json:"max_selections,omitempty"`
}

// Validate checks the structural invariants of the request.
func (r *Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown interaction type: %q", r.Type)
	}
	if r.Type.HasOptions() && len(r.Options) == 0 {
		return fmt.Errorf("interaction type %s requires at least one option", r.Type)
	}
	if !r.Type.HasOptions() && len(r.Options) > 0 {
		return fmt.Errorf("interaction type %s does not accept options", r.Type)
	}
	for i, opt := range r.Options {
		if opt.Value == "" {
			return fmt.Errorf("option %d has an empty value", i)
		}
	}
	if r.Type == TypeMultiChoice {
		if r.MinSelections < 0 {
			return fmt.Errorf("min_selections must not be negative")
		}
		if r.MaxSelections > 0 && r.MinSelections > r.MaxSelections {
			return fmt.Errorf("min_selections (%d) exceeds max_selections (%d)", r.MinSelections, r.MaxSelections)
		}
		if r.MaxSelections > len(r.Options) {
			return fmt.Errorf("max_selections (%d) exceeds option count (%d)", r.MaxSelections, len(r.Options))
		}
	}
	if r.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// DefaultOption returns the option flagged as default, or the first option.
func (r *Request) DefaultOption() (Option, bool) {
	if len(r.Options) == 0 {
		return Option{}, false
	}
	for _, opt := range r.Options {
		if opt.IsDefault {
			return opt, true
		}
	}
	return r.Options[0], true
}

// Response is the normalized outcome of one interaction. A channel builds it
// exactly once per request.
//
// Exactly one of Success and Cancelled is set; TimedOut is a sub-flag of
// Cancelled set when the deadline, rather than the caller or the user, ended
// the interaction.
type Response struct {
	Success   bool `json:"success"`
	Cancelled bool `json:"cancelled"`
	TimedOut  bool `json:"timed_out"`

	TextValue      string   `json:"text_value,omitempty"`
	SelectedValues []string `json:"selected_values,omitempty"`

	// CustomInput is set when a pick-or-type escalation produced free text.
	// The same text is mirrored as the single element of SelectedValues so
	// callers that only inspect selections still see the answer.
	CustomInput string `json:"custom_input,omitempty"`
}

// NewSuccess returns a success response with the given selected values.
func NewSuccess(values ...string) *Response {
	return &Response{Success: true, SelectedValues: values}
}

// NewText returns a success response carrying free text.
func NewText(text string) *Response {
	return &Response{Success: true, TextValue: text}
}

// NewCustomInput returns a success response for a pick-or-type escalation.
func NewCustomInput(text string) *Response {
	return &Response{Success: true, CustomInput: text, SelectedValues: []string{text}}
}

// NewCancelled returns a cancelled response; timedOut marks a deadline expiry.
func NewCancelled(timedOut bool) *Response {
	return &Response{Cancelled: true, TimedOut: timedOut}
}
