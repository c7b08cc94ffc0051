// Package orchestrator applies the per-call timeout and cancellation
// discipline uniformly over any render channel and normalizes the result.
// Callers never receive an error from Interact: channel failures are
// downgraded to a cancelled response.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/channel"
	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

// Recorder persists completed interactions. Implemented by the history store.
type Recorder interface {
	Record(ctx context.Context, channelName string, req *interaction.Request, resp *interaction.Response) error
}

// Orchestrator delegates interaction requests to the configured channel.
type Orchestrator struct {
	channel     channel.Channel
	channelName string
	defaultTTL  time.Duration
	recorder    Recorder
	log         *logger.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaultTimeout applies a deadline to requests that carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.defaultTTL = d }
}

// WithRecorder persists every completed interaction.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator over the given channel. channelName is used
// for logging and history records.
func New(ch channel.Channel, channelName string, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		channel:     ch,
		channelName: channelName,
		log:         log.WithFields(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Interact renders the request on the configured channel under a bounded
// cancellation scope and returns the normalized response. Exactly one of
// Success and Cancelled is set on the result; TimedOut is set only when the
// deadline, not the caller, ended the interaction.
func (o *Orchestrator) Interact(ctx context.Context, req *interaction.Request) *interaction.Response {
	if err := req.Validate(); err != nil {
		o.log.Warn("rejecting invalid interaction request", zap.Error(err))
		return interaction.NewCancelled(false)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = o.defaultTTL
	}

	// Capture this before the timeout race starts so a later
	// DeadlineExceeded can be attributed unambiguously.
	callerAlreadyCancelled := ctx.Err() != nil

	scope := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		scope, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.channel.Render(scope, req)
	switch {
	case err != nil:
		// Channel failures are never fatal to the caller.
		o.log.Error("channel render failed",
			zap.String("channel", o.channelName),
			zap.String("type", req.Type.String()),
			zap.Error(err))
		resp = interaction.NewCancelled(false)
	case resp == nil:
		o.log.Error("channel returned no response",
			zap.String("channel", o.channelName),
			zap.String("type", req.Type.String()))
		resp = interaction.NewCancelled(false)
	case resp.Cancelled:
		timedOut := errors.Is(scope.Err(), context.DeadlineExceeded) &&
			ctx.Err() == nil && !callerAlreadyCancelled
		if timedOut {
			resp.TimedOut = true
		}
	}

	o.log.Debug("interaction completed",
		zap.String("channel", o.channelName),
		zap.String("type", req.Type.String()),
		zap.Bool("success", resp.Success),
		zap.Bool("cancelled", resp.Cancelled),
		zap.Bool("timed_out", resp.TimedOut),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	if o.recorder != nil {
		if err := o.recorder.Record(context.WithoutCancel(ctx), o.channelName, req, resp); err != nil {
			o.log.Warn("failed to record interaction", zap.Error(err))
		}
	}
	return resp
}

// Channel returns the underlying render channel.
func (o *Orchestrator) Channel() channel.Channel {
	return o.channel
}
