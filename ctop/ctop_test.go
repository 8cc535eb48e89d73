package ctop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
)

func testContext(t *testing.T) fhe.Context {
	t.Helper()
	ctx, err := fhe.NewContext(3, 30, 4, 32)
	require.NoError(t, err)
	return ctx
}

func TestMaskResolve(t *testing.T) {
	m := Mask{Size: 4, Ones: []int{1, 3}}
	got, err := m.Resolve(nil)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 0, 1}, got)

	_, err = Mask{Size: 2, Ones: []int{5}}.Resolve(nil)
	require.Error(t, err)
}

func TestIndirectionResolve(t *testing.T) {
	ind := Indirection{Tensor: "w", FlatIndices: []int{2, NoIndex, 0}}
	got, err := ind.Resolve(map[string][]float64{"w": {10, 20, 30}})
	require.NoError(t, err)
	require.Equal(t, []float64{30, 0, 10}, got)

	_, err = ind.Resolve(map[string][]float64{})
	require.Error(t, err)
}

func TestChunkIrRoundTrip(t *testing.T) {
	chunks := []ChunkIr{
		Mask{Size: 8, Ones: []int{0, 7}},
		Indirection{Tensor: "x", FlatIndices: []int{NoIndex, 3, 1}},
	}
	for _, c := range chunks {
		var sb strings.Builder
		w := serial.NewWriter(&sb)
		WriteChunkIr(w, c)
		require.NoError(t, w.Err())
		back, err := ReadChunkIr(serial.NewScanner(strings.NewReader(sb.String())))
		require.NoError(t, err)
		require.Equal(t, c, back)
	}

	_, err := ReadChunkIr(serial.NewScanner(strings.NewReader("BOGUS 3")))
	require.Error(t, err)
}

func TestCtOpRoundTrip(t *testing.T) {
	li := fhe.LevelInfo{Level: 3, LogScale: 30}
	ops := []CtOp{
		InputC{Spec: ChunkSpec{Name: "x", Offset: 2}, Info: li},
		OutputC{Spec: ChunkSpec{Name: "y", Offset: 0}, Info: li},
		AddCC{Info: li},
		MulCC{Info: li},
		AddCP{Handle: "ch_0", Info: li},
		MulCP{Handle: "ch_1", Info: li},
		AddCS{Scalar: fhe.NewScaledValue(30, 2.5), Info: li},
		MulCS{Scalar: fhe.NewScaledValue(30, -3), Info: li},
		RotateC{Shift: 5, Info: li},
		RescaleC{Amount: 30, Info: li},
		BootstrapC{Info: li},
		ZeroC{Info: li},
	}
	for _, op := range ops {
		var sb strings.Builder
		w := serial.NewWriter(&sb)
		Write(w, op)
		require.NoError(t, w.Err())
		back, err := Read(serial.NewScanner(strings.NewReader(sb.String())))
		require.NoError(t, err)
		require.Equal(t, op, back)
	}

	_, err := Read(serial.NewScanner(strings.NewReader("FrobnicateC 1 2")))
	require.Error(t, err)
}

func TestProgramChunkDedup(t *testing.T) {
	p := NewProgram(testContext(t))
	h1 := p.AddChunk(Mask{Size: 8, Ones: []int{1}})
	h2 := p.AddChunk(Mask{Size: 8, Ones: []int{1}})
	h3 := p.AddChunk(Mask{Size: 8, Ones: []int{2}})
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.Len(t, p.Handles(), 2)
}

func TestWithLevelInfo(t *testing.T) {
	op := RotateC{Shift: 1, Info: fhe.LevelInfo{Level: 5, LogScale: 30}}
	lowered := op.WithLevelInfo(fhe.LevelInfo{Level: 2, LogScale: 30})
	require.Equal(t, fhe.Level(2), lowered.LevelInfo().Level)
	// The original is unchanged.
	require.Equal(t, fhe.Level(5), op.LevelInfo().Level)
}
