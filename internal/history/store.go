// Package history persists completed interactions to SQLite so operators can
// audit what was asked and what the human answered.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/humanlink/humanlink/internal/interaction"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	success INTEGER NOT NULL,
	cancelled INTEGER NOT NULL,
	timed_out INTEGER NOT NULL,
	text_value TEXT NOT NULL DEFAULT '',
	custom_input TEXT NOT NULL DEFAULT '',
	selected_values TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at);
`

// Entry is one recorded interaction.
type Entry struct {
	ID             int64     `db:"id" json:"id"`
	Channel        string    `db:"channel" json:"channel"`
	Type           string    `db:"type" json:"type"`
	Title          string    `db:"title" json:"title"`
	Message        string    `db:"message" json:"message"`
	Success        bool      `db:"success" json:"success"`
	Cancelled      bool      `db:"cancelled" json:"cancelled"`
	TimedOut       bool      `db:"timed_out" json:"timed_out"`
	TextValue      string    `db:"text_value" json:"text_value,omitempty"`
	CustomInput    string    `db:"custom_input" json:"custom_input,omitempty"`
	SelectedValues string    `db:"selected_values" json:"selected_values"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Selected decodes the stored selected values.
func (e *Entry) Selected() ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(e.SelectedValues), &values); err != nil {
		return nil, fmt.Errorf("failed to decode selected values: %w", err)
	}
	return values, nil
}

// Store is the SQLite-backed interaction history.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (and migrates) the history database at the given path.
// ":memory:" is accepted for tests and ephemeral runs.
func NewStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record persists one completed interaction. Implements orchestrator.Recorder.
func (s *Store) Record(ctx context.Context, channelName string, req *interaction.Request, resp *interaction.Response) error {
	selected, err := json.Marshal(resp.SelectedValues)
	if err != nil {
		return fmt.Errorf("failed to encode selected values: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(channel, type, title, message, success, cancelled, timed_out, text_value, custom_input, selected_values, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		channelName,
		req.Type.String(),
		req.Title,
		req.Message,
		resp.Success,
		resp.Cancelled,
		resp.TimedOut,
		resp.TextValue,
		resp.CustomInput,
		string(selected),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
