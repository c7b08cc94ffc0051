package chatbot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

const (
	// fetchRetryBackoff is the fixed delay after a transient fetch failure.
	fetchRetryBackoff = 3 * time.Second
	// sendTimeout bounds fire-and-forget outward sends.
	sendTimeout = 10 * time.Second
)

// pendingRequest is one in-flight interaction in the pending table.
type pendingRequest struct {
	id        string
	seq       uint64
	req       *interaction.Request
	messageID string

	// selected accumulates multi-select values in selection order.
	selected []string
	// awaitingText is set once the entry expects a free-text reply.
	awaitingText bool

	done chan *interaction.Response
}

// resolve attempts to complete the request. The buffered channel makes the
// first writer win; later attempts are no-ops.
func (p *pendingRequest) resolve(resp *interaction.Response) bool {
	select {
	case p.done <- resp:
		return true
	default:
		return false
	}
}

// Engine is the asynchronous correlation channel. It registers requests in a
// pending table keyed by a short correlation id, sends one outward prompt per
// request, and runs a single background poll loop that demultiplexes inbound
// events back to the table.
type Engine struct {
	transport Transport
	log       *logger.Logger
	// newID mints correlation ids; a field so tests can script collisions.
	newID func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
	seq     uint64

	progressMu sync.Mutex
	progress   map[string]progressEntry

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	startOnce  sync.Once
	closeOnce  sync.Once
}

type progressEntry struct {
	messageID string
	name      string
}

// NewEngine creates an engine over the given transport. Call Start before
// rendering requests and Close on shutdown.
func NewEngine(transport Transport, log *logger.Logger) *Engine {
	return &Engine{
		transport: transport,
		log:       log.WithChannel("chatbot"),
		newID:     newCorrelationID,
		pending:   make(map[string]*pendingRequest),
		progress:  make(map[string]progressEntry),
		loopDone:  make(chan struct{}),
	}
}

// Start launches the background poll loop. It runs until Close or until the
// given context ends.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		e.loopCancel = cancel
		go e.pollLoop(loopCtx)
	})
}

// Close stops the poll loop and the transport.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.loopCancel != nil {
			e.loopCancel()
			<-e.loopDone
		}
		err = e.transport.Close()
	})
	return err
}

// Render registers the request, sends the outward prompt, and suspends until
// an inbound event resolves it, the context is cancelled, or the deadline
// passes. It implements channel.Channel.
func (e *Engine) Render(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	e.mu.Lock()
	id := e.newID()
	for _, taken := e.pending[id]; taken; _, taken = e.pending[id] {
		// Short ids can collide with a live entry; never overwrite one.
		id = e.newID()
	}
	e.seq++
	p := &pendingRequest{
		id:           id,
		seq:          e.seq,
		req:          req,
		awaitingText: req.Type == interaction.TypeTextInput,
		done:         make(chan *interaction.Response, 1),
	}
	e.pending[id] = p
	e.mu.Unlock()

	text, actions := renderPrompt(id, req, nil, false, "")
	messageID, err := e.transport.SendMessage(ctx, text, actions)
	if err != nil {
		e.remove(id)
		return nil, err
	}

	e.mu.Lock()
	p.messageID = messageID
	e.mu.Unlock()

	e.log.Debug("interaction registered",
		zap.String("correlation_id", id),
		zap.String("type", req.Type.String()),
		zap.String("message_id", messageID))

	select {
	case resp := <-p.done:
		e.remove(id)
		e.markInert(p, resp)
		return resp, nil
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		p.resolve(interaction.NewCancelled(timedOut))
		// Either our resolution or a concurrently arrived one; the channel
		// holds exactly the winning response.
		resp := <-p.done
		e.remove(id)
		e.markInert(p, resp)
		return resp, nil
	}
}

// ReportProgress sends a progress message the first time an operation id is
// seen and edits that same message in place afterwards. Best-effort. The map
// is resolved under the lock but transport sends happen outside it, so a slow
// send for one operation never stalls reports for another.
func (e *Engine) ReportProgress(ctx context.Context, operationID string, current, total int, status string) {
	e.progressMu.Lock()
	entry, ok := e.progress[operationID]
	e.progressMu.Unlock()

	if ok {
		text := renderProgress(entry.name, current, total, status)
		if err := e.transport.EditMessage(ctx, entry.messageID, text, nil); err != nil {
			e.log.Warn("failed to edit progress message",
				zap.String("operation_id", operationID),
				zap.Error(err))
		}
		return
	}

	name := status
	if name == "" {
		name = "Working"
	}
	messageID, err := e.transport.SendMessage(ctx, renderProgress(name, current, total, ""), nil)
	if err != nil {
		e.log.Warn("failed to send progress message",
			zap.String("operation_id", operationID),
			zap.Error(err))
		return
	}

	e.progressMu.Lock()
	if _, raced := e.progress[operationID]; !raced {
		// Two concurrent first reports can both send; keep the first mapping.
		e.progress[operationID] = progressEntry{messageID: messageID, name: name}
	}
	e.progressMu.Unlock()
}

// EndProgress makes one terminal edit and releases the operation mapping.
// Idempotent: unknown ids are ignored.
func (e *Engine) EndProgress(ctx context.Context, operationID string) {
	e.progressMu.Lock()
	entry, ok := e.progress[operationID]
	if ok {
		delete(e.progress, operationID)
	}
	e.progressMu.Unlock()

	if !ok {
		return
	}
	if err := e.transport.EditMessage(ctx, entry.messageID, renderProgressDone(entry.name), nil); err != nil {
		e.log.Warn("failed to finalize progress message",
			zap.String("operation_id", operationID),
			zap.Error(err))
	}
}

// pollLoop fetches inbound events with a monotonically advancing cursor and
// dispatches each to at most one pending entry. It runs for the lifetime of
// the engine; transient fetch failures are retried after a fixed backoff.
func (e *Engine) pollLoop(ctx context.Context) {
	defer close(e.loopDone)

	var cursor int64
	for {
		events, next, err := e.transport.FetchEvents(ctx, cursor)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.log.Warn("event fetch failed, retrying", zap.Error(err))
			select {
			case <-time.After(fetchRetryBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		for _, ev := range events {
			e.dispatch(ev)
		}
		cursor = next
	}
}

// dispatch routes one inbound event. It performs synchronous bookkeeping
// only; outward message sends happen on separate goroutines so the loop's
// cursor advancement is never blocked by the transport.
func (e *Engine) dispatch(ev Event) {
	switch ev.Kind {
	case EventAction:
		e.dispatchAction(ev.Token)
	case EventText:
		e.dispatchText(ev.Text)
	}
}

func (e *Engine) dispatchAction(raw string) {
	tok, ok := parseToken(raw)
	if !ok {
		e.log.Debug("dropping malformed action token", zap.String("token", raw))
		return
	}

	e.mu.Lock()
	p, ok := e.pending[tok.id]
	if !ok {
		e.mu.Unlock()
		// Already resolved, evicted, or forged: stale, not an error.
		e.log.Debug("dropping stale action event", zap.String("correlation_id", tok.id))
		return
	}

	switch tok.action {
	case actionCancel:
		e.mu.Unlock()
		p.resolve(interaction.NewCancelled(false))

	case actionSelect:
		e.mu.Unlock()
		if tok.value == "" {
			p.resolve(interaction.NewSuccess())
		} else {
			p.resolve(interaction.NewSuccess(tok.value))
		}

	case actionMulti:
		p.selected = toggleValue(p.selected, tok.value)
		selected := append([]string(nil), p.selected...)
		e.mu.Unlock()
		e.reissue(p, selected, "")

	case actionDone:
		n := len(p.selected)
		min := p.req.MinSelections
		max := p.req.MaxSelections
		if n < min || (max > 0 && n > max) {
			selected := append([]string(nil), p.selected...)
			e.mu.Unlock()
			e.reissue(p, selected, selectionNote(min, max))
			return
		}
		values := append([]string(nil), p.selected...)
		e.mu.Unlock()
		p.resolve(interaction.NewSuccess(values...))

	case actionText:
		p.awaitingText = true
		e.mu.Unlock()
		e.editForText(p)

	default:
		e.mu.Unlock()
		e.log.Debug("dropping unknown action",
			zap.String("correlation_id", tok.id),
			zap.String("action", tok.action))
	}
}

// dispatchText matches bare free text to the single eligible pending entry.
// Entries already awaiting text win over merely text-eligible ones; ties go
// to the oldest registration, so matching is deterministic.
func (e *Engine) dispatchText(text string) {
	e.mu.Lock()
	var candidates []*pendingRequest
	for _, p := range e.pending {
		if p.awaitingText || p.req.Type == interaction.TypeTextInput || p.req.AllowCustomInput {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		e.mu.Unlock()
		e.log.Debug("dropping free-text event with no eligible pending request")
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].awaitingText != candidates[j].awaitingText {
			return candidates[i].awaitingText
		}
		return candidates[i].seq < candidates[j].seq
	})
	p := candidates[0]
	e.mu.Unlock()

	if p.req.Type == interaction.TypeTextInput {
		p.resolve(interaction.NewText(text))
		return
	}
	p.resolve(interaction.NewCustomInput(text))
}

// reissue edits the options message so the current accumulator state (and an
// optional notice) is visible. Fire-and-forget relative to the poll loop.
func (e *Engine) reissue(p *pendingRequest, selected []string, note string) {
	text, actions := renderPrompt(p.id, p.req, selected, false, note)
	e.sendEdit(p, text, actions)
}

// editForText switches the prompt into free-text entry mode.
func (e *Engine) editForText(p *pendingRequest) {
	text, actions := renderPrompt(p.id, p.req, nil, true, "")
	e.sendEdit(p, text, actions)
}

// markInert edits a terminal prompt so stale taps are visibly rejected
// instead of mysteriously ignored.
func (e *Engine) markInert(p *pendingRequest, resp *interaction.Response) {
	e.mu.Lock()
	messageID := p.messageID
	e.mu.Unlock()
	if messageID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := e.transport.EditMessage(ctx, messageID, renderOutcome(p.req, resp), nil); err != nil {
			e.log.Debug("failed to mark prompt inert",
				zap.String("correlation_id", p.id),
				zap.Error(err))
		}
	}()
}

func (e *Engine) sendEdit(p *pendingRequest, text string, actions []Action) {
	e.mu.Lock()
	messageID := p.messageID
	e.mu.Unlock()
	if messageID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := e.transport.EditMessage(ctx, messageID, text, actions); err != nil {
			e.log.Warn("failed to edit prompt",
				zap.String("correlation_id", p.id),
				zap.Error(err))
		}
	}()
}

func (e *Engine) remove(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// toggleValue appends the value if absent and removes it if present, so a
// pressed option can be un-pressed.
func toggleValue(values []string, value string) []string {
	for i, v := range values {
		if v == value {
			return append(values[:i], values[i+1:]...)
		}
	}
	return append(values, value)
}

func selectionNote(min, max int) string {
	switch {
	case max > 0 && min > 0:
		return fmt.Sprintf("Select between %d and %d options before pressing Done.", min, max)
	case min > 0:
		return fmt.Sprintf("Select at least %d option(s) before pressing Done.", min)
	default:
		return fmt.Sprintf("Select at most %d option(s) before pressing Done.", max)
	}
}

// newCorrelationID returns 8 hex chars of a UUID. Registration re-mints on a
// collision with a live entry.
func newCorrelationID() string {
	return uuid.New().String()[:8]
}
