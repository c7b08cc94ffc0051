// Package console implements the blocking render channel: prompts are
// written to a terminal and answers read line by line. Reads happen on a
// dedicated goroutine so cancellation and timeouts interrupt a wait cleanly.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

// Console renders interactions on an io.Reader/io.Writer pair, normally
// stdin/stdout.
type Console struct {
	out io.Writer
	log *logger.Logger

	lines   chan string
	readErr chan error

	progressMu sync.Mutex
	progress   map[string]string // operation id -> display name
}

// New creates a console channel and starts its line reader.
func New(in io.Reader, out io.Writer, log *logger.Logger) *Console {
	c := &Console{
		out:      out,
		log:      log.WithChannel("console"),
		lines:    make(chan string),
		readErr:  make(chan error, 1),
		progress: make(map[string]string),
	}
	go c.readLoop(in)
	return c
}

func (c *Console) readLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		c.readErr <- err
	} else {
		c.readErr <- io.EOF
	}
}

// readLine waits for the next input line or the end of the scope.
func (c *Console) readLine(ctx context.Context) (string, error) {
	select {
	case line := <-c.lines:
		return strings.TrimSpace(line), nil
	case err := <-c.readErr:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Render presents the request and blocks until the user answers or the scope
// ends.
func (c *Console) Render(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	c.printHeader(req)

	resp, err := c.renderByType(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintln(c.out, "(interaction ended)")
		return interaction.NewCancelled(errors.Is(err, context.DeadlineExceeded)), nil
	}
	return nil, err
}

func (c *Console) renderByType(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	switch req.Type {
	case interaction.TypeNotify:
		return c.renderNotify(ctx)
	case interaction.TypeConfirm, interaction.TypeSingleChoice, interaction.TypeChoiceWithText:
		return c.renderChoice(ctx, req)
	case interaction.TypeMultiChoice:
		return c.renderMultiChoice(ctx, req)
	case interaction.TypeTextInput:
		return c.renderTextInput(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported interaction type: %s", req.Type)
	}
}

func (c *Console) printHeader(req *interaction.Request) {
	fmt.Fprintln(c.out)
	if req.Title != "" {
		fmt.Fprintln(c.out, req.Title)
	}
	if req.Message != "" {
		fmt.Fprintln(c.out, req.Message)
	}
}

func (c *Console) renderNotify(ctx context.Context) (*interaction.Response, error) {
	fmt.Fprint(c.out, "Press Enter to acknowledge: ")
	if _, err := c.readLine(ctx); err != nil {
		return nil, err
	}
	return interaction.NewSuccess(), nil
}

func (c *Console) renderChoice(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	c.printOptions(req)
	allowText := req.AllowCustomInput || req.Type == interaction.TypeChoiceWithText

	for {
		fmt.Fprint(c.out, c.choicePrompt(req, allowText))
		line, err := c.readLine(ctx)
		if err != nil {
			return nil, err
		}

		if line == "" {
			if def, ok := req.DefaultOption(); ok {
				return interaction.NewSuccess(def.Value), nil
			}
			continue
		}
		if req.IsCancellable && strings.EqualFold(line, "c") {
			return interaction.NewCancelled(false), nil
		}
		if n, err := strconv.Atoi(line); err == nil {
			if n >= 1 && n <= len(req.Options) {
				return interaction.NewSuccess(req.Options[n-1].Value), nil
			}
			fmt.Fprintf(c.out, "Enter a number between 1 and %d.\n", len(req.Options))
			continue
		}
		if allowText {
			return interaction.NewCustomInput(line), nil
		}
		fmt.Fprintln(c.out, "Unrecognized answer.")
	}
}

func (c *Console) renderMultiChoice(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	c.printOptions(req)

	for {
		fmt.Fprint(c.out, c.multiPrompt(req))
		line, err := c.readLine(ctx)
		if err != nil {
			return nil, err
		}

		if req.IsCancellable && strings.EqualFold(line, "c") {
			return interaction.NewCancelled(false), nil
		}
		values, err := parseSelection(line, req.Options)
		if err != nil {
			fmt.Fprintln(c.out, err.Error())
			continue
		}
		if len(values) < req.MinSelections {
			fmt.Fprintf(c.out, "Select at least %d option(s).\n", req.MinSelections)
			continue
		}
		if req.MaxSelections > 0 && len(values) > req.MaxSelections {
			fmt.Fprintf(c.out, "Select at most %d option(s).\n", req.MaxSelections)
			continue
		}
		return interaction.NewSuccess(values...), nil
	}
}

func (c *Console) renderTextInput(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	if req.CustomInputPlaceholder != "" {
		fmt.Fprintf(c.out, "Answer (%s): ", req.CustomInputPlaceholder)
	} else {
		fmt.Fprint(c.out, "Answer: ")
	}
	line, err := c.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if req.IsCancellable && strings.EqualFold(line, "c") {
		return interaction.NewCancelled(false), nil
	}
	return interaction.NewText(line), nil
}

func (c *Console) printOptions(req *interaction.Request) {
	for i, opt := range req.Options {
		marker := " "
		if opt.IsDefault {
			marker = "*"
		}
		if opt.Description != "" {
			fmt.Fprintf(c.out, " %s %d) %s - %s\n", marker, i+1, opt.Label, opt.Description)
		} else {
			fmt.Fprintf(c.out, " %s %d) %s\n", marker, i+1, opt.Label)
		}
	}
}

func (c *Console) choicePrompt(req *interaction.Request, allowText bool) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Choose 1-%d", len(req.Options)))
	if allowText {
		parts = append(parts, "or type your own answer")
	}
	if req.IsCancellable {
		parts = append(parts, "(c to cancel)")
	}
	return strings.Join(parts, " ") + ": "
}

func (c *Console) multiPrompt(req *interaction.Request) string {
	prompt := fmt.Sprintf("Choose 1-%d, comma-separated", len(req.Options))
	if req.IsCancellable {
		prompt += " (c to cancel)"
	}
	return prompt + ": "
}

func parseSelection(line string, options []interaction.Option) ([]string, error) {
	if line == "" {
		return nil, nil
	}
	parts := strings.Split(line, ",")
	seen := make(map[int]bool, len(parts))
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || n > len(options) {
			return nil, fmt.Errorf("enter numbers between 1 and %d, comma-separated", len(options))
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		values = append(values, options[n-1].Value)
	}
	return values, nil
}

// ReportProgress prints progress lines; the first report for an operation
// names it, later reports update the percentage.
func (c *Console) ReportProgress(_ context.Context, operationID string, current, total int, status string) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()

	name, ok := c.progress[operationID]
	if !ok {
		name = status
		if name == "" {
			name = "Working"
		}
		c.progress[operationID] = name
		fmt.Fprintf(c.out, "[%s] started\n", name)
		return
	}
	if total > 0 {
		fmt.Fprintf(c.out, "[%s] %d/%d %s\n", name, current, total, status)
	} else {
		fmt.Fprintf(c.out, "[%s] %d %s\n", name, current, status)
	}
}

// EndProgress prints the terminal line once and forgets the operation.
func (c *Console) EndProgress(_ context.Context, operationID string) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()

	name, ok := c.progress[operationID]
	if !ok {
		return
	}
	delete(c.progress, operationID)
	fmt.Fprintf(c.out, "[%s] finished\n", name)
	c.log.Debug("progress finished", zap.String("operation", name))
}
