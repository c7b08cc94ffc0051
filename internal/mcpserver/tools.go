package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
	"github.com/humanlink/humanlink/internal/orchestrator"
)

// toolset binds the tool handlers to the orchestrator and tracks the progress
// sinks opened by report_progress calls.
type toolset struct {
	orch *orchestrator.Orchestrator
	log  *logger.Logger

	mu       sync.Mutex
	progress map[string]*orchestrator.Progress
}

func registerTools(s *server.MCPServer, orch *orchestrator.Orchestrator, log *logger.Logger) {
	ts := &toolset{
		orch:     orch,
		log:      log,
		progress: make(map[string]*orchestrator.Progress),
	}

	s.AddTool(
		mcp.NewTool("notify",
			mcp.WithDescription("Show the user a notice they acknowledge. Blocks until acknowledged."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the notice"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The notice text"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.notifyHandler(),
	)

	s.AddTool(
		mcp.NewTool("confirm",
			mcp.WithDescription("Ask the user a yes/no question and return their answer."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the question"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question to confirm"),
			),
			mcp.WithString("yes_label",
				mcp.Description("Label for the affirmative option (default: Yes)"),
			),
			mcp.WithString("no_label",
				mcp.Description("Label for the negative option (default: No)"),
			),
			mcp.WithBoolean("cancellable",
				mcp.Description("Whether the user may dismiss the question without answering"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.confirmHandler(),
	)

	s.AddTool(
		mcp.NewTool("choose_one",
			mcp.WithDescription("Ask the user to pick exactly one option from a list."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the question"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question to ask"),
			),
			mcp.WithArray("options",
				mcp.Required(),
				mcp.Description("Options to choose from. Each option has: label (short display text), value (identifier returned on selection; defaults to the label), description (optional explanation), is_default (optional)"),
			),
			mcp.WithBoolean("cancellable",
				mcp.Description("Whether the user may dismiss the question without answering"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.chooseOneHandler(),
	)

	s.AddTool(
		mcp.NewTool("choose_many",
			mcp.WithDescription("Ask the user to pick several options from a list."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the question"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question to ask"),
			),
			mcp.WithArray("options",
				mcp.Required(),
				mcp.Description("Options to choose from. Each option has: label, value (defaults to the label), description, is_default"),
			),
			mcp.WithNumber("min_selections",
				mcp.Description("Minimum number of selections required"),
			),
			mcp.WithNumber("max_selections",
				mcp.Description("Maximum number of selections allowed; 0 means unlimited"),
			),
			mcp.WithBoolean("cancellable",
				mcp.Description("Whether the user may dismiss the question without answering"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.chooseManyHandler(),
	)

	s.AddTool(
		mcp.NewTool("ask_text",
			mcp.WithDescription("Ask the user for free-text input."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the question"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question to ask"),
			),
			mcp.WithString("placeholder",
				mcp.Description("Placeholder hint shown in the input field"),
			),
			mcp.WithBoolean("cancellable",
				mcp.Description("Whether the user may dismiss the question without answering"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.askTextHandler(),
	)

	s.AddTool(
		mcp.NewTool("choose_or_type",
			mcp.WithDescription("Ask the user to pick one option or type their own answer."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short heading for the question"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question to ask"),
			),
			mcp.WithArray("options",
				mcp.Required(),
				mcp.Description("Suggested options. Each option has: label, value (defaults to the label), description, is_default"),
			),
			mcp.WithString("placeholder",
				mcp.Description("Placeholder hint for the free-text escape hatch"),
			),
			mcp.WithBoolean("cancellable",
				mcp.Description("Whether the user may dismiss the question without answering"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Optional deadline in seconds; 0 means wait indefinitely"),
			),
		),
		ts.chooseOrTypeHandler(),
	)

	s.AddTool(
		mcp.NewTool("report_progress",
			mcp.WithDescription(
				"Report progress of a long-running operation to the user. "+
					"Omit operation_id on the first call to start a new progress surface; "+
					"the returned id addresses later updates. Set done=true to finalize.",
			),
			mcp.WithString("operation_id",
				mcp.Description("Id returned by an earlier call; omit to start a new operation"),
			),
			mcp.WithString("name",
				mcp.Description("Display name of the operation (used when starting)"),
			),
			mcp.WithNumber("current",
				mcp.Description("Units of work completed so far"),
			),
			mcp.WithNumber("total",
				mcp.Description("Total units of work; 0 means unknown"),
			),
			mcp.WithString("status",
				mcp.Description("Short status line shown alongside the counter"),
			),
			mcp.WithBoolean("done",
				mcp.Description("Finalize the operation's progress surface"),
			),
		),
		ts.reportProgressHandler(),
	)

	log.Info("registered MCP tools", zap.Int("count", 7))
}

func (ts *toolset) notifyHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ir := &interaction.Request{
			Title:   title,
			Message: message,
			Type:    interaction.TypeNotify,
			Timeout: timeoutArg(req),
		}
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) confirmHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		yes := req.GetString("yes_label", "Yes")
		no := req.GetString("no_label", "No")

		ir := &interaction.Request{
			Title:   title,
			Message: message,
			Type:    interaction.TypeConfirm,
			Options: []interaction.Option{
				{Label: yes, Value: "yes", IsDefault: true},
				{Label: no, Value: "no"},
			},
			IsCancellable: req.GetBool("cancellable", false),
			Timeout:       timeoutArg(req),
		}
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) chooseOneHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ir, errResult := ts.optionRequest(req, interaction.TypeSingleChoice)
		if errResult != nil {
			return errResult, nil
		}
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) chooseManyHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ir, errResult := ts.optionRequest(req, interaction.TypeMultiChoice)
		if errResult != nil {
			return errResult, nil
		}
		ir.MinSelections = req.GetInt("min_selections", 0)
		ir.MaxSelections = req.GetInt("max_selections", 0)
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) askTextHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ir := &interaction.Request{
			Title:                  title,
			Message:                message,
			Type:                   interaction.TypeTextInput,
			CustomInputPlaceholder: req.GetString("placeholder", ""),
			IsCancellable:          req.GetBool("cancellable", false),
			Timeout:                timeoutArg(req),
		}
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) chooseOrTypeHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ir, errResult := ts.optionRequest(req, interaction.TypeChoiceWithText)
		if errResult != nil {
			return errResult, nil
		}
		ir.AllowCustomInput = true
		ir.CustomInputPlaceholder = req.GetString("placeholder", "")
		return ts.interact(ctx, ir)
	}
}

func (ts *toolset) reportProgressHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		operationID := req.GetString("operation_id", "")
		current := req.GetInt("current", 0)
		total := req.GetInt("total", 0)
		status := req.GetString("status", "")
		done := req.GetBool("done", false)

		if operationID == "" {
			name := req.GetString("name", "")
			if name == "" {
				name = "Working"
			}
			p := ts.orch.CreateProgress(ctx, name, total)
			ts.mu.Lock()
			ts.progress[p.OperationID()] = p
			ts.mu.Unlock()
			if current > 0 || status != "" {
				p.Report(ctx, current, total, status)
			}
			return mcp.NewToolResultText(fmt.Sprintf("Progress started. operation_id: %s", p.OperationID())), nil
		}

		ts.mu.Lock()
		p, ok := ts.progress[operationID]
		ts.mu.Unlock()
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown operation_id: %s", operationID)), nil
		}

		if done {
			p.Done(ctx)
			ts.mu.Lock()
			delete(ts.progress, operationID)
			ts.mu.Unlock()
			return mcp.NewToolResultText("Progress finalized."), nil
		}

		p.Report(ctx, current, total, status)
		return mcp.NewToolResultText("Progress reported."), nil
	}
}

// optionRequest builds a request for the option-carrying tools from the common
// title/message/options/cancellable/timeout arguments.
func (ts *toolset) optionRequest(req mcp.CallToolRequest, typ interaction.Type) (*interaction.Request, *mcp.CallToolResult) {
	title, err := req.RequireString("title")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	message, err := req.RequireString("message")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}

	raw, ok := req.GetArguments()["options"]
	if !ok {
		return nil, mcp.NewToolResultError("options is required")
	}
	options, err := parseOptions(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}

	return &interaction.Request{
		Title:         title,
		Message:       message,
		Type:          typ,
		Options:       options,
		IsCancellable: req.GetBool("cancellable", false),
		Timeout:       timeoutArg(req),
	}, nil
}

func parseOptions(raw interface{}) ([]interaction.Option, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}
	var options []interaction.Option
	if err := json.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("at least one option is required")
	}
	for i := range options {
		if options[i].Value == "" {
			options[i].Value = options[i].Label
		}
	}
	return options, nil
}

func timeoutArg(req mcp.CallToolRequest) time.Duration {
	secs := req.GetFloat("timeout_seconds", 0)
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// interact runs the request through the orchestrator and renders the outcome
// as text the agent can act on.
func (ts *toolset) interact(ctx context.Context, ir *interaction.Request) (*mcp.CallToolResult, error) {
	resp := ts.orch.Interact(ctx, ir)
	return mcp.NewToolResultText(formatOutcome(ir, resp)), nil
}

func formatOutcome(req *interaction.Request, resp *interaction.Response) string {
	if resp.Cancelled {
		if resp.TimedOut {
			return "The interaction timed out before the user responded. Proceed with your best judgment."
		}
		return "The user dismissed the interaction without answering. Proceed with your best judgment."
	}

	var b strings.Builder
	b.WriteString("# User Response\n\n")
	b.WriteString(fmt.Sprintf("**Question asked:** %s\n\n", req.Message))

	switch {
	case req.Type == interaction.TypeNotify:
		return "The user acknowledged the notice."

	case resp.CustomInput != "":
		b.WriteString(fmt.Sprintf("**User typed their own answer:** %s\n", resp.CustomInput))

	case resp.TextValue != "":
		b.WriteString(fmt.Sprintf("**User's answer:** %s\n", resp.TextValue))

	case len(resp.SelectedValues) > 0:
		for _, value := range resp.SelectedValues {
			label := value
			for _, opt := range req.Options {
				if opt.Value == value {
					label = opt.Label
					break
				}
			}
			b.WriteString(fmt.Sprintf("**User's choice:** %s\n", label))
		}

	default:
		b.WriteString("The user did not provide an answer.\n")
	}

	b.WriteString("\nProceed with the task based on the user's response above.")
	return b.String()
}
