package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsSharedLogger(t *testing.T) {
	first := Get()
	require.NotNil(t, first)
	assert.Same(t, first, Get())
	assert.Equal(t, zerolog.InfoLevel, first.GetLevel())
}

func TestGetSupportsChainedCalls(t *testing.T) {
	// level methods take a pointer receiver, so Get must hand one out
	Get().Debug().Str("k", "v").Msg("chained call")
	Get().Warn().Msg("chained call")
	Get().Error().Err(nil).Msg("chained call")
}
