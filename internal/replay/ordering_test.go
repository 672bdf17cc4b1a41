package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderingPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderingPolicy
		wantErr bool
	}{
		{"", OrderingDrop, false},
		{"drop", OrderingDrop, false},
		{" STRICT ", OrderingStrict, false},
		{"reorder", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOrderingPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOrderGuard(t *testing.T) {
	var g orderGuard
	assert.True(t, g.accept(100))
	assert.True(t, g.accept(100))
	assert.True(t, g.accept(150))
	assert.False(t, g.accept(149))
	assert.True(t, g.accept(150))
	assert.Equal(t, int64(150), g.latest)
}
