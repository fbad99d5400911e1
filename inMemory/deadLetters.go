package inMemory

import (
	"context"
	"sync"

	ddd "github.com/paulvitic/ddd-projector"
)

// DeadLetters collects undeliverable work reports in memory.
type DeadLetters struct {
	mu      sync.Mutex
	reports []ddd.Undelivered
}

func NewDeadLetters() *DeadLetters {
	return &DeadLetters{}
}

func (d *DeadLetters) Undeliverable(_ context.Context, report ddd.Undelivered) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, report)
	return nil
}

func (d *DeadLetters) Reports() []ddd.Undelivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ddd.Undelivered(nil), d.reports...)
}
