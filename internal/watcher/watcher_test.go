package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{OpGitignoreChange, "GITIGNORE_CHANGE"},
		{OpConfigChange, "CONFIG_CHANGE"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	// Zero values pick up the defaults.
	filled := Options{}.WithDefaults()
	assert.Equal(t, DefaultOptions(), filled)

	// Set values survive.
	custom := Options{
		DebounceWindow: 500 * time.Millisecond,
		IgnorePatterns: []string{"*.tmp"},
	}.WithDefaults()
	assert.Equal(t, 500*time.Millisecond, custom.DebounceWindow)
	assert.Equal(t, []string{"*.tmp"}, custom.IgnorePatterns)
	assert.Equal(t, DefaultOptions().PollInterval, custom.PollInterval)
	assert.Equal(t, DefaultOptions().EventBufferSize, custom.EventBufferSize)
}
