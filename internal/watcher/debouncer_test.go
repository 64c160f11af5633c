package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nextBatch waits for one coalesced batch or fails the test.
func nextBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpCreate, Timestamp: time.Now()})

	batch := nextBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.go", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_MergeRules(t *testing.T) {
	tests := []struct {
		name    string
		ops     []Operation
		wantOp  Operation
		dropped bool
	}{
		{"create then modify keeps create", []Operation{OpCreate, OpModify}, OpCreate, false},
		{"create then delete cancels out", []Operation{OpCreate, OpDelete}, 0, true},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, OpDelete, false},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, OpModify, false},
		{"repeated modify stays modify", []Operation{OpModify, OpModify, OpModify}, OpModify, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "f.go", Operation: op, Timestamp: time.Now()})
			}

			if tt.dropped {
				select {
				case batch := <-d.Output():
					t.Fatalf("expected no batch, got %v", batch)
				case <-time.After(100 * time.Millisecond):
				}
				return
			}

			batch := nextBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.wantOp, batch[0].Operation)
		})
	}
}

func TestDebouncer_DistinctPathsStayDistinct(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "b.go", Operation: OpModify, Timestamp: time.Now()})

	batch := nextBatch(t, d)
	require.Len(t, batch, 2)

	ops := map[string]Operation{}
	for _, e := range batch {
		ops[e.Path] = e.Operation
	}
	assert.Equal(t, OpCreate, ops["a.go"])
	assert.Equal(t, OpModify, ops["b.go"])
}

func TestDebouncer_QuietPeriodRestartsOnNewEvents(t *testing.T) {
	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpModify, Timestamp: time.Now()})
	time.Sleep(30 * time.Millisecond)
	d.Add(FileEvent{Path: "b.go", Operation: OpModify, Timestamp: time.Now()})

	// Both land in the same batch because the second Add re-armed the timer
	// before the first flush fired.
	batch := nextBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncer_StopClosesOutputAndDropsLateAdds(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Stop()
	d.Stop() // idempotent

	d.Add(FileEvent{Path: "late.go", Operation: OpCreate, Timestamp: time.Now()})

	_, open := <-d.Output()
	assert.False(t, open)
}
