package htm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNOnForFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, nOnFor(0.0, 1000))
	assert.Equal(t, 20, nOnFor(0.02, 1000))
}

func TestInhibitGlobalPicksTopNByExcitationTieBreakByColumn(t *testing.T) {
	exc := map[ColumnID]float64{0: 1.0, 1: 3.0, 2: 3.0, 3: 2.0}
	active := InhibitGlobal(exc, 2)
	assert.Len(t, active, 2)
	_, ok1 := active[1]
	_, ok2 := active[2]
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestInhibitGlobalCapsAtAvailableColumns(t *testing.T) {
	exc := map[ColumnID]float64{0: 1.0, 1: 2.0}
	active := InhibitGlobal(exc, 10)
	assert.Len(t, active, 2)
}

func TestInhibitLocalSuppressesWeakerNeighbour(t *testing.T) {
	topo := NewTopology([]int{10})
	exc := map[ColumnID]float64{4: 5.0, 5: 1.0, 6: 1.0}
	active := InhibitLocal(exc, topo, 1, 0, 3)
	_, col4 := active[4]
	_, col5 := active[5]
	assert.True(t, col4)
	assert.False(t, col5) // outranked by neighbour column 4
}

func TestRecomputeInhibitionRadiusFloorsAtOne(t *testing.T) {
	proximal := NewSynapseGraph(0.2)
	colTopo := NewTopology([]int{10})
	inputTopo := NewTopology([]int{10})
	radius := RecomputeInhibitionRadius(proximal, 10, 1, colTopo, inputTopo)
	assert.Equal(t, 1, radius)
}

func TestRecomputeInhibitionRadiusScalesWithConnectedSpan(t *testing.T) {
	proximal := NewSynapseGraph(0.2)
	colTopo := NewTopology([]int{10})
	inputTopo := NewTopology([]int{100})
	for c := 0; c < 10; c++ {
		target := SegPath{Column: ColumnID(c), Cell: 0, Segment: 0}
		proximal.addSynapse(target, Bit(c*10), 0.5)
		proximal.addSynapse(target, Bit(c*10+9), 0.5)
	}
	radius := RecomputeInhibitionRadius(proximal, 10, 1, colTopo, inputTopo)
	assert.True(t, radius >= 1)
}
