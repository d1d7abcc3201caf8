package github

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		target   string
		kind     string
		number   string
		wantsErr bool
	}{
		{"issue#12", "issue", "12", false},
		{"pr#3", "pr", "3", false},
		{"discussion#4", "", "", true},
		{"issue#", "", "", true},
		{"issue#12x", "", "", true},
		{"issue12", "", "", true},
	}

	for _, tt := range tests {
		kind, number, err := splitTarget(tt.target)
		if tt.wantsErr {
			assert.Error(t, err, tt.target)
			continue
		}
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.number, number)
	}
}

func TestRateLimitResponseParsing(t *testing.T) {
	raw := `{"resources": {"core": {"limit": 5000, "remaining": 4321, "reset": 1735689600}}}`
	var resp rateLimitResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	assert.Equal(t, 4321, resp.Resources.Core.Remaining)
	assert.Equal(t, int64(1735689600), resp.Resources.Core.Reset)
}
