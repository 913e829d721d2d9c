// Package progress implements an external progress collaborator:
// process-wide counters and a terminal reporter,
// represented as an injected handle with a documented lifecycle
// (construct before any sync, report+close at the end) rather than a
// static singleton, so tests can observe it.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Event is one reportable outcome during a sync/upload/download run.
type Event struct {
	Kind      EventKind
	LocalPath string
	Detail    string
}

// EventKind classifies an Event for filtering/formatting.
type EventKind int

const (
	EventUploaded EventKind = iota
	EventDownloaded
	EventConflict
	EventError
	EventDeleted
	EventMoved
)

// Counters accumulates run totals with atomic counters so concurrent
// upload/download workers can update them without a lock (mirrors the
// teacher's WorkerPool succeeded/failed atomics).
type Counters struct {
	Uploaded   atomic.Int64
	Downloaded atomic.Int64
	BytesSent  atomic.Int64
	BytesRecv  atomic.Int64
	Conflicts  atomic.Int64
	Errors     atomic.Int64
}

// Collaborator is the injected handle sync operations report through.
// Its lifecycle: construct once per command invocation via New, call
// Report for every event as it happens, call Close when the operation
// finishes to flush a summary line.
type Collaborator struct {
	out      io.Writer
	counters Counters
	events   []Event // first maxRecordedEvents events, for --json / test introspection
}

const maxRecordedEvents = 10_000

// New constructs a Collaborator writing human-readable lines to out.
func New(out io.Writer) *Collaborator {
	return &Collaborator{out: out}
}

// Report records ev, updates counters, and writes a line to the
// collaborator's writer (unless out is nil, e.g. a --quiet run that only
// wants final counters).
func (c *Collaborator) Report(ev Event) {
	switch ev.Kind {
	case EventUploaded:
		c.counters.Uploaded.Add(1)
	case EventDownloaded:
		c.counters.Downloaded.Add(1)
	case EventConflict:
		c.counters.Conflicts.Add(1)
	case EventError:
		c.counters.Errors.Add(1)
	}

	if len(c.events) < maxRecordedEvents {
		c.events = append(c.events, ev)
	}

	if c.out != nil {
		fmt.Fprintln(c.out, formatEvent(ev))
	}
}

func formatEvent(ev Event) string {
	switch ev.Kind {
	case EventUploaded:
		return "uploaded " + ev.LocalPath
	case EventDownloaded:
		return "downloaded " + ev.LocalPath
	case EventConflict:
		return "conflict: " + ev.LocalPath + " (" + ev.Detail + ")"
	case EventError:
		return "error: " + ev.LocalPath + ": " + ev.Detail
	case EventDeleted:
		return "deleted " + ev.LocalPath
	case EventMoved:
		return "moved " + ev.LocalPath + " -> " + ev.Detail
	default:
		return ev.LocalPath
	}
}

// AddBytesSent/AddBytesRecv track transfer volume for the final summary.
func (c *Collaborator) AddBytesSent(n int64) { c.counters.BytesSent.Add(n) }
func (c *Collaborator) AddBytesRecv(n int64) { c.counters.BytesRecv.Add(n) }

// Events returns the events recorded so far (capped at maxRecordedEvents),
// for tests and --json output.
func (c *Collaborator) Events() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)

	return out
}

// Snapshot returns the current counter values.
func (c *Collaborator) Snapshot() Counters {
	var s Counters

	s.Uploaded.Store(c.counters.Uploaded.Load())
	s.Downloaded.Store(c.counters.Downloaded.Load())
	s.BytesSent.Store(c.counters.BytesSent.Load())
	s.BytesRecv.Store(c.counters.BytesRecv.Load())
	s.Conflicts.Store(c.counters.Conflicts.Load())
	s.Errors.Store(c.counters.Errors.Load())

	return s
}

// Close prints the final summary line. Safe to call once at the end of a
// run.
func (c *Collaborator) Close() {
	if c.out == nil {
		return
	}

	fmt.Fprintf(c.out, "done: %s uploaded, %s downloaded, %d conflicts, %d errors\n",
		humanize.Bytes(uint64(c.counters.BytesSent.Load())),
		humanize.Bytes(uint64(c.counters.BytesRecv.Load())),
		c.counters.Conflicts.Load(),
		c.counters.Errors.Load(),
	)
}
