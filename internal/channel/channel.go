// Package channel defines the render-channel contract every human-facing
// surface implements: a blocking console, a dialog-style web surface, or an
// asynchronous chat-bot channel. The orchestrator talks to surfaces only
// through this interface.
package channel

import (
	"context"
	"errors"

	"github.com/humanlink/humanlink/internal/interaction"
)

// ErrConfiguration marks a channel that cannot start, e.g. missing
// credentials. It is surfaced synchronously at construction and is the only
// failure class allowed to abort startup.
var ErrConfiguration = errors.New("channel configuration error")

// Channel renders interaction requests on one human-facing surface.
type Channel interface {
	// Render presents the request and suspends until it is resolved,
	// cancelled, or timed out. Implementations return a response for user
	// outcomes (including cancellation) and an error only for transport or
	// render failures; the orchestrator downgrades those to a cancelled
	// response.
	Render(ctx context.Context, req *interaction.Request) (*interaction.Response, error)

	// ReportProgress updates the progress surface for an operation.
	// Fire-and-forget, best-effort.
	ReportProgress(ctx context.Context, operationID string, current, total int, status string)

	// EndProgress marks an operation's progress surface as finished.
	// Idempotent.
	EndProgress(ctx context.Context, operationID string)
}
