package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Progress is a caller-facing sink for one long-running operation. Reports
// are forwarded to the channel's progress surface; Done finalizes it exactly
// once.
type Progress struct {
	orch        *Orchestrator
	operationID string
	name        string
	total       int
	doneOnce    sync.Once
}

// CreateProgress mints a fresh operation id and returns a sink bound to it.
// The first report creates the channel's progress surface; later reports
// update it in place.
func (o *Orchestrator) CreateProgress(ctx context.Context, name string, total int) *Progress {
	p := &Progress{
		orch:        o,
		operationID: uuid.New().String(),
		name:        name,
		total:       total,
	}
	// Seed the surface so the operation is visible before the first report.
	o.channel.ReportProgress(ctx, p.operationID, 0, total, name)
	return p
}

// OperationID returns the generated operation id.
func (p *Progress) OperationID() string {
	return p.operationID
}

// Report forwards the current progress to the channel. Fire-and-forget.
func (p *Progress) Report(ctx context.Context, current, total int, status string) {
	if total == 0 {
		total = p.total
	}
	p.orch.channel.ReportProgress(ctx, p.operationID, current, total, status)
}

// Done finalizes the progress surface. Safe to call more than once; only the
// first call reaches the channel.
func (p *Progress) Done(ctx context.Context) {
	p.doneOnce.Do(func() {
		p.orch.channel.EndProgress(ctx, p.operationID)
	})
}
