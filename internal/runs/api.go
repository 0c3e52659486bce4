package runs

import (
	"context"
	"time"
)

type API interface {
	// Create registers a run of a task on a machine preset. An empty
	// machine means DefaultMachine.
	Create(ctx context.Context, task, machine, oomRetryMachine string) (id string, err error)

	Find(ctx context.Context, id string) (*Run, error)

	// Start marks a pending run executing.
	Start(ctx context.Context, id string) error

	// Finish drives the run through the completion gate to a terminal
	// status, or requeues it on a larger machine after an OOM kill.
	// It returns the run in its resulting state.
	Finish(ctx context.Context, id string, failure *Failure) (*Run, error)

	Close(ctx context.Context) error
}

// gate is the part of the stream registry the run lifecycle depends on.
type gate interface {
	WaitDrained(ctx context.Context, run string, ceiling time.Duration) bool
	DropRun(ctx context.Context, run string)
}
