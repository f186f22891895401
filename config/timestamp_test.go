package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedTimestampGenerator(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	gen := FixedTimestampGenerator{Timestamp: ts}
	require.Equal(t, ts, gen.GetTime())
}

func TestRealTimestampGeneratorAdvances(t *testing.T) {
	gen := RealTimestampGenerator{}
	first := gen.GetTime()
	time.Sleep(time.Millisecond)
	second := gen.GetTime()
	require.True(t, second.After(first) || second.Equal(first))
}
