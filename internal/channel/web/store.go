// Package web implements the dialog-style render channel: prompts are pushed
// to browser clients over WebSocket and resolved through an HTTP respond
// endpoint. Each pending dialog carries a single-resolution future wired
// before the dialog is announced, so the first respond wins and later ones
// are rejected.
package web

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/humanlink/humanlink/internal/interaction"
)

var (
	// ErrNotFound marks an unknown or already removed dialog id.
	ErrNotFound = errors.New("interaction not found")
	// ErrAlreadyResolved marks a respond that lost the resolution race.
	ErrAlreadyResolved = errors.New("interaction already resolved")
)

// pendingDialog is one dialog waiting for a browser response.
type pendingDialog struct {
	ID        string
	Request   *interaction.Request
	CreatedAt time.Time

	done chan *interaction.Response
}

// resolve attempts to complete the dialog; the first writer wins.
func (d *pendingDialog) resolve(resp *interaction.Response) bool {
	select {
	case d.done <- resp:
		return true
	default:
		return false
	}
}

// Store holds the pending dialogs, keyed by generated id.
type Store struct {
	mu      sync.RWMutex
	pending map[string]*pendingDialog
}

// NewStore creates an empty dialog store.
func NewStore() *Store {
	return &Store{pending: make(map[string]*pendingDialog)}
}

// Create registers a new pending dialog for the request.
func (s *Store) Create(req *interaction.Request) *pendingDialog {
	d := &pendingDialog{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now().UTC(),
		done:      make(chan *interaction.Response, 1),
	}
	s.mu.Lock()
	s.pending[d.ID] = d
	s.mu.Unlock()
	return d
}

// Get returns a pending dialog by id.
func (s *Store) Get(id string) (*pendingDialog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.pending[id]
	return d, ok
}

// Resolve completes a pending dialog with the given response.
func (s *Store) Resolve(id string, resp *interaction.Response) error {
	s.mu.RLock()
	d, ok := s.pending[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if !d.resolve(resp) {
		return ErrAlreadyResolved
	}
	return nil
}

// Remove drops a dialog from the store. Later responds get ErrNotFound.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// PendingView is the list projection of one pending dialog.
type PendingView struct {
	ID        string               `json:"id"`
	Request   *interaction.Request `json:"request"`
	CreatedAt time.Time            `json:"created_at"`
}

// List returns all pending dialogs, oldest first.
func (s *Store) List() []PendingView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]PendingView, 0, len(s.pending))
	for _, d := range s.pending {
		views = append(views, PendingView{ID: d.ID, Request: d.Request, CreatedAt: d.CreatedAt})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	return views
}
