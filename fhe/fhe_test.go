package fhe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/serial"
)

func TestPrecision(t *testing.T) {
	for _, v := range []int{19, 26, 32} {
		p, err := NewPrecision(v)
		require.NoError(t, err)
		require.Equal(t, Precision(v), p)
	}
	_, err := NewPrecision(24)
	require.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	ctx, err := NewContext(15, 50, 13, 32)
	require.NoError(t, err)

	var sb strings.Builder
	w := serial.NewWriter(&sb)
	ctx.Write(w)
	require.NoError(t, w.Err())

	back, err := ReadContext(serial.NewScanner(strings.NewReader(sb.String())))
	require.NoError(t, err)
	require.Equal(t, ctx, back)
}

func TestScalarLogScale(t *testing.T) {
	require.Equal(t, LogScale(30), ScalarLogScale(0.5, 30))
	require.Equal(t, LogScale(30), ScalarLogScale(1, 30))
	require.Equal(t, LogScale(31), ScalarLogScale(2, 30))
	require.Equal(t, LogScale(33), ScalarLogScale(7, 30))
	require.Equal(t, LogScale(40), ScalarLogScale(1024, 30))
}

func TestLevelInfoRoundTrip(t *testing.T) {
	li := LevelInfo{Level: 3, LogScale: 45}
	var sb strings.Builder
	w := serial.NewWriter(&sb)
	li.Write(w)
	back, err := ReadLevelInfo(serial.NewScanner(strings.NewReader(sb.String())))
	require.NoError(t, err)
	require.Equal(t, li, back)
}
