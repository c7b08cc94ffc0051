package web

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
	ws "github.com/humanlink/humanlink/pkg/websocket"
)

// Web is the dialog-style render channel. Pending dialogs are announced over
// the hub and resolved through the HTTP respond endpoint.
type Web struct {
	store *Store
	hub   *Hub
	log   *logger.Logger

	progressMu sync.Mutex
	progress   map[string]string // operation id -> display name
}

// NewChannel creates the web channel over a hub.
func NewChannel(hub *Hub, log *logger.Logger) *Web {
	return &Web{
		store:    NewStore(),
		hub:      hub,
		log:      log.WithChannel("web"),
		progress: make(map[string]string),
	}
}

// Store exposes the pending-dialog store to the HTTP handlers.
func (w *Web) Store() *Store {
	return w.store
}

// Render registers a pending dialog, announces it, and suspends until a
// browser resolves it or the scope ends.
func (w *Web) Render(ctx context.Context, req *interaction.Request) (*interaction.Response, error) {
	d := w.store.Create(req)
	w.notify(ws.ActionInteractionRequested, PendingView{ID: d.ID, Request: req, CreatedAt: d.CreatedAt})

	select {
	case resp := <-d.done:
		w.store.Remove(d.ID)
		w.notify(ws.ActionInteractionResolved, resolvedPayload{ID: d.ID, Response: resp})
		return resp, nil
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		d.resolve(interaction.NewCancelled(timedOut))
		resp := <-d.done
		w.store.Remove(d.ID)
		if resp.Cancelled {
			// Render the dialog inert instead of letting it vanish.
			w.notify(ws.ActionInteractionExpired, resolvedPayload{ID: d.ID, Response: resp})
		} else {
			w.notify(ws.ActionInteractionResolved, resolvedPayload{ID: d.ID, Response: resp})
		}
		return resp, nil
	}
}

type resolvedPayload struct {
	ID       string                `json:"id"`
	Response *interaction.Response `json:"response"`
}

type progressPayload struct {
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Status      string `json:"status,omitempty"`
	Done        bool   `json:"done,omitempty"`
}

// ReportProgress broadcasts a progress update keyed by operation id; clients
// update the matching surface in place.
func (w *Web) ReportProgress(_ context.Context, operationID string, current, total int, status string) {
	w.progressMu.Lock()
	name, ok := w.progress[operationID]
	if !ok {
		name = status
		if name == "" {
			name = "Working"
		}
		w.progress[operationID] = name
	}
	w.progressMu.Unlock()

	w.notify(ws.ActionProgressUpdated, progressPayload{
		OperationID: operationID,
		Name:        name,
		Current:     current,
		Total:       total,
		Status:      status,
	})
}

// EndProgress broadcasts the terminal progress update once.
func (w *Web) EndProgress(_ context.Context, operationID string) {
	w.progressMu.Lock()
	name, ok := w.progress[operationID]
	if ok {
		delete(w.progress, operationID)
	}
	w.progressMu.Unlock()

	if !ok {
		return
	}
	w.notify(ws.ActionProgressDone, progressPayload{OperationID: operationID, Name: name, Done: true})
}

func (w *Web) notify(action string, payload interface{}) {
	msg, err := ws.NewNotification(action, payload)
	if err != nil {
		w.log.Error("failed to build notification", zap.String("action", action), zap.Error(err))
		return
	}
	w.hub.Broadcast(msg)
}
