package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSugaredLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{name: "production", verbose: false, wantDebug: false},
		{name: "verbose", verbose: true, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			log, err := NewSugaredLogger(tt.verbose)
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.Equal(t, tt.wantDebug, log.Desugar().Core().Enabled(zap.DebugLevel))
			assert.True(t, log.Desugar().Core().Enabled(zap.InfoLevel))
		})
	}
}
