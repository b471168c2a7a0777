package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotReflectsRecordedCounters(t *testing.T) {
	d := NewDispatcher()
	d.RecordCall(CallNumDontCare)
	d.RecordCall(CallNumDontCare)
	d.RecordENFILE()
	d.SetInodeTableSize(7)

	snap := d.Snapshot()
	assert.EqualValues(t, 2, snap.Calls)
	assert.EqualValues(t, 1, snap.ENFILE)
	assert.EqualValues(t, 7, snap.InodeTable)
}

// CallNumDontCare stands in for any call number; RecordCall's counter
// is call-number-agnostic.
const CallNumDontCare = 12
