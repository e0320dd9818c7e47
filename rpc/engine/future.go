package engine

import (
	"context"

	"github.com/ValentinKolb/sqc/lib/codec"
)

// Future is the pending result of a submitted command.
type Future struct {
	line    string
	done    chan struct{}
	records []codec.Record
	err     error
	seq     uint64 // resolution order, assigned by the engine
}

func newFuture(line string) *Future {
	return &Future{line: line, done: make(chan struct{})}
}

// Line returns the encoded command line.
func (f *Future) Line() string {
	return f.line
}

// Done is closed once the command is resolved or rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the command is resolved or ctx is done. Cancelling ctx
// abandons only the wait: the command keeps its place in the queue until the
// server terminates it.
func (f *Future) Wait(ctx context.Context) ([]codec.Record, error) {
	select {
	case <-f.done:
		return f.records, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the command is resolved.
func (f *Future) Result() ([]codec.Record, error) {
	<-f.done
	return f.records, f.err
}

// resolve must be called exactly once, under the engine lock
func (f *Future) resolve(records []codec.Record, err error, seq uint64) {
	f.records = records
	f.err = err
	f.seq = seq
	close(f.done)
}
