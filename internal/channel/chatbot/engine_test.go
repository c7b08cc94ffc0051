package chatbot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	require.NoError(t, err)
	return log
}

func newTestEngine(t *testing.T) (*Engine, *MemoryTransport) {
	t.Helper()
	transport := NewMemoryTransport()
	engine := NewEngine(transport, testLogger(t))
	engine.Start(context.Background())
	t.Cleanup(func() { _ = engine.Close() })
	return engine, transport
}

// renderAsync runs Render on its own goroutine and returns a channel carrying
// the result.
func renderAsync(ctx context.Context, e *Engine, req *interaction.Request) chan *interaction.Response {
	out := make(chan *interaction.Response, 1)
	go func() {
		resp, err := e.Render(ctx, req)
		if err != nil {
			out <- nil
			return
		}
		out <- resp
	}()
	return out
}

// waitSent blocks until the transport has sent n outward messages.
func waitSent(t *testing.T, tr *MemoryTransport, n int) []SentMessage {
	t.Helper()
	require.Eventually(t, func() bool { return len(tr.Sent()) >= n },
		2*time.Second, 5*time.Millisecond)
	return tr.Sent()
}

func waitResp(t *testing.T, ch chan *interaction.Response) *interaction.Response {
	t.Helper()
	select {
	case resp := <-ch:
		require.NotNil(t, resp)
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

// tokenFor finds the action token whose label matches.
func tokenFor(t *testing.T, msg SentMessage, label string) string {
	t.Helper()
	for _, a := range msg.Actions {
		if a.Label == label {
			return a.Token
		}
	}
	t.Fatalf("no action labeled %q in %v", label, msg.Actions)
	return ""
}

func confirmRequest() *interaction.Request {
	return &interaction.Request{
		Title:   "Deploy",
		Message: "Ship it?",
		Type:    interaction.TypeConfirm,
		Options: []interaction.Option{
			{Label: "Yes", Value: "yes", IsDefault: true},
			{Label: "No", Value: "no"},
		},
		IsCancellable: true,
	}
}

func TestRenderConfirmSelect(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, confirmRequest())
	msg := waitSent(t, transport, 1)[0]

	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Yes *")})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"yes"}, resp.SelectedValues)
}

func TestRenderConfirmCancelAction(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, confirmRequest())
	msg := waitSent(t, transport, 1)[0]

	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Cancel")})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Cancelled)
	assert.False(t, resp.TimedOut)
}

func TestRenderTimeout(t *testing.T) {
	engine, transport := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	respCh := renderAsync(ctx, engine, confirmRequest())
	waitSent(t, transport, 1)

	resp := waitResp(t, respCh)
	assert.True(t, resp.Cancelled)
	assert.True(t, resp.TimedOut)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRenderCallerCancel(t *testing.T) {
	engine, transport := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	respCh := renderAsync(ctx, engine, confirmRequest())
	waitSent(t, transport, 1)
	cancel()

	resp := waitResp(t, respCh)
	assert.True(t, resp.Cancelled)
	assert.False(t, resp.TimedOut)
}

func TestRenderTextInput(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message: "Name the release",
		Type:    interaction.TypeTextInput,
	})
	waitSent(t, transport, 1)

	transport.Inject(Event{Kind: EventText, Text: "aurora"})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Success)
	assert.Equal(t, "aurora", resp.TextValue)
	assert.Empty(t, resp.SelectedValues)
}

func TestRenderChoiceWithTextEscalation(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message:          "Pick a color",
		Type:             interaction.TypeChoiceWithText,
		AllowCustomInput: true,
		Options: []interaction.Option{
			{Label: "Red", Value: "red"},
			{Label: "Blue", Value: "blue"},
		},
	})
	msg := waitSent(t, transport, 1)[0]

	// Escalate to free text, then answer with a value not in the options.
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Type my own answer")})
	transport.Inject(Event{Kind: EventText, Text: "teal"})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Success)
	assert.Equal(t, "teal", resp.CustomInput)
	assert.Equal(t, []string{"teal"}, resp.SelectedValues)
}

func TestRenderMultiChoiceToggleAndDone(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message:       "Pick platforms",
		Type:          interaction.TypeMultiChoice,
		MinSelections: 1,
		MaxSelections: 2,
		Options: []interaction.Option{
			{Label: "Linux", Value: "linux"},
			{Label: "macOS", Value: "mac"},
			{Label: "Windows", Value: "win"},
		},
	})
	msg := waitSent(t, transport, 1)[0]

	// Select linux, select mac, unselect linux, select win, then finish.
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Linux")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "macOS")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Linux")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Windows")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Done")})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"mac", "win"}, resp.SelectedValues)
}

func TestRenderMultiChoiceMinEnforced(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message:       "Pick platforms",
		Type:          interaction.TypeMultiChoice,
		MinSelections: 2,
		Options: []interaction.Option{
			{Label: "Linux", Value: "linux"},
			{Label: "macOS", Value: "mac"},
		},
	})
	msg := waitSent(t, transport, 1)[0]

	// Done with too few selections must not resolve; the prompt is re-issued
	// with a notice instead.
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Linux")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Done")})

	require.Eventually(t, func() bool {
		for _, edit := range transport.EditsFor(msg.ID) {
			if strings.Contains(edit.Text, "Select at least 2") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-respCh:
		t.Fatal("request resolved below the selection minimum")
	case <-time.After(50 * time.Millisecond):
	}

	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "macOS")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Done")})

	resp := waitResp(t, respCh)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"linux", "mac"}, resp.SelectedValues)
}

func TestStaleAndMalformedTokensIgnored(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, confirmRequest())
	msg := waitSent(t, transport, 1)[0]

	// Neither forged, stale, nor malformed events may resolve the request.
	transport.Inject(Event{Kind: EventAction, Token: "deadbeef:opt:yes"})
	transport.Inject(Event{Kind: EventAction, Token: "garbage"})
	transport.Inject(Event{Kind: EventText, Text: "free text no one is waiting for"})

	select {
	case <-respCh:
		t.Fatal("request resolved by an unrelated event")
	case <-time.After(50 * time.Millisecond):
	}

	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "No")})
	resp := waitResp(t, respCh)
	assert.Equal(t, []string{"no"}, resp.SelectedValues)
}

func TestFirstResolutionWins(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, confirmRequest())
	msg := waitSent(t, transport, 1)[0]

	yes := tokenFor(t, msg, "Yes *")
	no := tokenFor(t, msg, "No")
	transport.Inject(Event{Kind: EventAction, Token: yes})
	transport.Inject(Event{Kind: EventAction, Token: no})

	resp := waitResp(t, respCh)
	assert.Equal(t, []string{"yes"}, resp.SelectedValues)
}

func TestFreeTextPrefersAwaitingEntry(t *testing.T) {
	engine, transport := newTestEngine(t)

	// Older request merely allows custom input; the newer one explicitly
	// awaits text, so the text must match the newer one.
	eligibleCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message:          "Pick a color",
		Type:             interaction.TypeChoiceWithText,
		AllowCustomInput: true,
		Options:          []interaction.Option{{Label: "Red", Value: "red"}},
	})
	waitSent(t, transport, 1)

	awaitingCh := renderAsync(context.Background(), engine, &interaction.Request{
		Message: "Name the release",
		Type:    interaction.TypeTextInput,
	})
	waitSent(t, transport, 2)

	transport.Inject(Event{Kind: EventText, Text: "aurora"})

	resp := waitResp(t, awaitingCh)
	assert.Equal(t, "aurora", resp.TextValue)

	select {
	case <-eligibleCh:
		t.Fatal("free text resolved the wrong pending request")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResolvedPromptMarkedInert(t *testing.T) {
	engine, transport := newTestEngine(t)

	respCh := renderAsync(context.Background(), engine, confirmRequest())
	msg := waitSent(t, transport, 1)[0]

	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg, "Yes *")})
	waitResp(t, respCh)

	require.Eventually(t, func() bool {
		for _, edit := range transport.EditsFor(msg.ID) {
			if strings.Contains(edit.Text, "Answered: Yes") && len(edit.Actions) == 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReportProgressEditsInPlace(t *testing.T) {
	engine, transport := newTestEngine(t)
	ctx := context.Background()

	engine.ReportProgress(ctx, "op1", 0, 10, "Build")
	engine.ReportProgress(ctx, "op1", 5, 10, "compiling")
	engine.ReportProgress(ctx, "op1", 10, 10, "linking")
	engine.EndProgress(ctx, "op1")
	// Unknown ids and repeated ends are ignored.
	engine.EndProgress(ctx, "op1")
	engine.EndProgress(ctx, "op2")

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Build: 0% (0/10)", sent[0].Text)

	edits := transport.EditsFor(sent[0].ID)
	require.Len(t, edits, 3)
	assert.Contains(t, edits[0].Text, "50%")
	assert.Contains(t, edits[1].Text, "100%")
	assert.Equal(t, "Build: finished", edits[2].Text)
}

func TestCorrelationIDCollisionRegenerated(t *testing.T) {
	engine, transport := newTestEngine(t)

	// Script the id source so the second registration draws an id already
	// held by an in-flight entry and must re-mint it.
	ids := []string{"aaaa0000", "aaaa0000", "bbbb1111"}
	var calls int
	engine.newID = func() string {
		if calls >= len(ids) {
			return newCorrelationID()
		}
		id := ids[calls]
		calls++
		return id
	}

	first := renderAsync(context.Background(), engine, confirmRequest())
	msg1 := waitSent(t, transport, 1)[0]
	second := renderAsync(context.Background(), engine, confirmRequest())
	msg2 := waitSent(t, transport, 2)[1]

	tok1 := tokenFor(t, msg1, "Yes *")
	tok2 := tokenFor(t, msg2, "No")
	require.True(t, strings.HasPrefix(tok1, "aaaa0000:"))
	require.True(t, strings.HasPrefix(tok2, "bbbb1111:"))

	transport.Inject(Event{Kind: EventAction, Token: tok1})
	transport.Inject(Event{Kind: EventAction, Token: tok2})

	assert.Equal(t, []string{"yes"}, waitResp(t, first).SelectedValues)
	assert.Equal(t, []string{"no"}, waitResp(t, second).SelectedValues)
}

// stallingTransport blocks sends whose text contains the marker so a test can
// hold one progress send open while another proceeds.
type stallingTransport struct {
	*MemoryTransport
	marker  string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingTransport) SendMessage(ctx context.Context, text string, actions []Action) (string, error) {
	if strings.Contains(text, s.marker) {
		close(s.entered)
		<-s.release
	}
	return s.MemoryTransport.SendMessage(ctx, text, actions)
}

func TestReportProgressNotSerializedByTransport(t *testing.T) {
	transport := &stallingTransport{
		MemoryTransport: NewMemoryTransport(),
		marker:          "Slow",
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	engine := NewEngine(transport, testLogger(t))
	t.Cleanup(func() { _ = engine.Close() })

	go engine.ReportProgress(context.Background(), "slow-op", 0, 10, "Slow")
	<-transport.entered

	// A report for an unrelated operation must complete while the first
	// operation's send is still stuck in the transport.
	done := make(chan struct{})
	go func() {
		engine.ReportProgress(context.Background(), "fast-op", 0, 10, "Fast")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a stalled transport send blocked an unrelated progress report")
	}

	close(transport.release)
	require.Eventually(t, func() bool { return len(transport.Sent()) == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestConcurrentRenders(t *testing.T) {
	engine, transport := newTestEngine(t)

	first := renderAsync(context.Background(), engine, confirmRequest())
	msg1 := waitSent(t, transport, 1)[0]
	second := renderAsync(context.Background(), engine, confirmRequest())
	msg2 := waitSent(t, transport, 2)[1]

	// Answer in reverse order; each event lands on its own request.
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg2, "No")})
	transport.Inject(Event{Kind: EventAction, Token: tokenFor(t, msg1, "Yes *")})

	assert.Equal(t, []string{"no"}, waitResp(t, second).SelectedValues)
	assert.Equal(t, []string{"yes"}, waitResp(t, first).SelectedValues)
}
