package htm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayerParams() LayerParams {
	p := DefaultLayerParams()
	p.InputDimensions = []int{100}
	p.ColumnDimensions = []int{50}
	p.Depth = 4
	p.RandomSeed = 7
	return p
}

func ffBits(indices ...int) map[Bit]struct{} {
	out := make(map[Bit]struct{}, len(indices))
	for _, i := range indices {
		out[Bit(i)] = struct{}{}
	}
	return out
}

func TestNewLayerValidatesParams(t *testing.T) {
	p := DefaultLayerParams()
	_, err := NewLayer(p) // no InputDimensions
	require.Error(t, err)
}

func TestActivateRejectsOutOfRangeBits(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	err = l.Activate(ffBits(500), nil)
	assert.Error(t, err)
}

func TestActivateRejectsStableBitsNotSubsetOfFFBits(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	err = l.Activate(ffBits(1, 2, 3), ffBits(4))
	assert.Error(t, err)
}

func TestLearnRequiresPriorActivate(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	err = l.Learn()
	assert.Error(t, err)
}

func TestDepolariseRequiresPriorActivate(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	err = l.Depolarise(nil, nil, nil)
	assert.Error(t, err)
}

func TestActivateProducesActiveColumnsAtFirstLevel(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := make(map[Bit]struct{}, 40)
	for i := 0; i < 40; i++ {
		in[Bit(i)] = struct{}{}
	}
	require.NoError(t, l.Activate(in, in))

	state := l.State()
	assert.NotEmpty(t, state.ActiveColumns)
	assert.NotEmpty(t, state.ActiveCells)
	// First-level layers (max_segments==1) are always engaged.
	assert.True(t, l.active.Engaged)
}

func TestFullStepCycleRunsWithoutError(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := make(map[Bit]struct{}, 40)
	for i := 0; i < 40; i++ {
		in[Bit(i)] = struct{}{}
	}
	for step := 0; step < 5; step++ {
		require.NoError(t, l.Activate(in, in))
		require.NoError(t, l.Learn())
		require.NoError(t, l.Depolarise(nil, nil, nil))
	}

	state := l.State()
	assert.Equal(t, 5, state.Timestep)
}

func TestRepeatedInputGrowsDistalPredictionsOverTime(t *testing.T) {
	l, a, b := newSequenceMemoryTestLayer(t, 13)

	var predictedBeforeB map[CellID]struct{}
	for rep := 0; rep < 20; rep++ {
		require.NoError(t, l.Activate(a, a))
		require.NoError(t, l.Learn())
		require.NoError(t, l.Depolarise(nil, nil, nil))

		predictedBeforeB = l.distalState.PredictedCells

		require.NoError(t, l.Activate(b, b))
		require.NoError(t, l.Learn())
		require.NoError(t, l.Depolarise(nil, nil, nil))
	}
	// After several AB repetitions the layer should have learned to
	// predict B's active cells distally following A.
	require.NotEmpty(t, predictedBeforeB)
	for cell := range l.active.ActiveCells {
		_, wasPredicted := predictedBeforeB[cell]
		assert.True(t, wasPredicted, "cell %v active on B but not predicted after A", cell)
	}
}

func TestBreakTMClearsDistalState(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := ffBits(1, 2, 3)
	require.NoError(t, l.Activate(in, in))
	require.NoError(t, l.Depolarise(nil, nil, nil))
	require.NotNil(t, l.distalState)

	l.Break(BreakTM)
	assert.Nil(t, l.distalState)
	assert.Nil(t, l.priorDistalState)
}

func TestBreakWinnersClearsPreviousWinnerCells(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := ffBits(1, 2, 3)
	require.NoError(t, l.Activate(in, in))
	require.NoError(t, l.Activate(in, in)) // l.active now holds the winners the next step starts from

	l.Break(BreakWinners)
	assert.Empty(t, l.active.WinnerCells)
}

func TestBreakTPResetsTemporalPoolingExcitation(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := ffBits(1, 2, 3)
	require.NoError(t, l.Activate(in, in))

	l.Break(BreakTP)
	assert.Empty(t, l.active.TPExc)
}

func TestStableActiveBitsAreSubsetOfActiveBits(t *testing.T) {
	l, err := NewLayer(testLayerParams())
	require.NoError(t, err)

	in := ffBits(1, 2, 3, 4, 5, 6, 7, 8)
	require.NoError(t, l.Activate(in, in))

	state := l.State()
	for b := range state.OutStableFFBits {
		_, ok := state.OutFFBits[b]
		assert.True(t, ok)
	}
}
