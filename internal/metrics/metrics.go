// Package metrics wires a handful of lightweight monkit counters and
// gauges onto the dispatcher, in the same low-ceremony style rclone
// itself never needed but the wider pack (storj.io's monkit-based
// services) reaches for: a package-level Scope, a Task around the hot
// path, and a few named counters — no new metrics stack, no exporter
// wiring beyond what an embedder's own monkit registry already has.
package metrics

import (
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
)

var mon = monkit.Package()

// Dispatcher aggregates the counters/gauges the dispatcher updates on
// every call (spec.md's call-table entries are the hot path; this is
// the observability surface SPEC_FULL.md §A's ambient stack adds on
// top of it).
type Dispatcher struct {
	calls      int64
	enfile     int64
	inodeTable int64
}

// NewDispatcher returns a zeroed counter set.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// RecordCall increments the total-calls counter.
func (d *Dispatcher) RecordCall(callNum int) {
	atomic.AddInt64(&d.calls, 1)
	mon.Counter("dispatch_calls").Inc(1)
}

// RecordENFILE counts a fd/inode-table-exhaustion rejection.
func (d *Dispatcher) RecordENFILE() {
	atomic.AddInt64(&d.enfile, 1)
	mon.Counter("dispatch_enfile").Inc(1)
}

// SetInodeTableSize publishes the current live-inode count as a gauge.
func (d *Dispatcher) SetInodeTableSize(n int) {
	atomic.StoreInt64(&d.inodeTable, int64(n))
	mon.IntVal("inode_table_size").Observe(int64(n))
}

// Snapshot returns the current counter values for diagnostics.
type Snapshot struct {
	Calls      int64
	ENFILE     int64
	InodeTable int64
}

func (d *Dispatcher) Snapshot() Snapshot {
	return Snapshot{
		Calls:      atomic.LoadInt64(&d.calls),
		ENFILE:     atomic.LoadInt64(&d.enfile),
		InodeTable: atomic.LoadInt64(&d.inodeTable),
	}
}
