package htm

import (
	"github.com/sirupsen/logrus"
)

// ActiveState is the immutable snapshot produced by Activate. Grounded on
// the teacher's DynamicState pairing of current/previous state
// (temporalPooler.go), narrowed to the single current-step snapshot the
// spec's Layer needs (the "previous" values a step needs are read off the
// Layer's retained prior snapshot, not duplicated here).
type ActiveState struct {
	Timestep     int
	Engaged      bool
	NewlyEngaged bool

	ActiveColumns   map[ColumnID]struct{}
	BurstingColumns map[ColumnID]struct{}
	ActiveCells     map[CellID]struct{}
	WinnerCells     map[ColumnID]CellID
	StableActiveCells map[CellID]struct{}
	LearningCells   map[CellID]struct{}

	TPExc map[CellID]float64

	InFFBits       map[Bit]struct{}
	InStableFFBits map[Bit]struct{}
	OutFFBits      map[int]struct{}
	OutStableFFBits map[int]struct{}

	BestMatchingProximal map[ColumnID]SegPath
	WellMatchingColumns  map[ColumnID]struct{}

	PrevActiveFraction float64
}

// DistalState is the snapshot produced by Depolarise. Two are retained on
// the Layer: the current one and the immediately preceding one (needed by
// the Learning engine's punishment pass, which compares what was
// predicted then against what is actually active now).
type DistalState struct {
	Timestep int

	CellExc              map[CellID]float64
	PredictedCells       map[CellID]struct{}
	MatchingSegments     map[CellID]SegPath
	WellMatchingSegments map[CellID]SegPath

	// ActiveBits is the full aligned distal source vector (lateral on_bits +
	// motor + topdown) this depolarise computed excitation against -- the
	// "previous step's active distal sources" the Learning engine matches
	// and punishes against.
	ActiveBits map[Bit]struct{}

	// LearnableBits is the narrower aligned vector (lateral on_lc_bits, i.e.
	// winner cells, + motor + topdown) the Learning engine samples new
	// synapse sources from.
	LearnableBits map[Bit]struct{}
}

// Layer is the facade owning both synapse graphs and all state snapshots
// for one cortical layer. Grounded on the teacher's TemporalPooler
// (temporalPooler.go), generalized from its fixed SP/TM split into the
// spec's activate/learn/depolarise pipeline.
type Layer struct {
	Params LayerParams

	ColumnTopology *Topology
	InputTopology  *Topology
	depth          int

	// Proximal carries feedforward segments, one per column. Distal carries
	// every segment that can depolarise a cell ahead of time -- lateral,
	// motor and topdown feedback alike, aligned into one combined source
	// space by Depolarise (see depolarize.go). The glossary's "apical
	// segment" is structurally identical to a distal one, so topdown
	// feedback is just another sub-range of Distal's source space rather
	// than a separate graph; there is no Apical field.
	Proximal *SynapseGraph
	Distal   *SynapseGraph

	rng  *SplitRNG
	duty *DutyCycles

	inhibitionRadius int
	timestep         int

	active     *ActiveState
	prevActive *ActiveState

	distalState      *DistalState
	priorDistalState *DistalState

	hasActivated   bool
	hasDepolarised bool

	log *logrus.Entry
}

// NewLayer validates params and constructs a fresh layer with empty
// synapse graphs, zeroed duty cycles, and boost factors at 1.0.
func NewLayer(params LayerParams) (*Layer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	inputTopo := NewTopology(params.InputDimensions)
	colTopo := NewTopology(params.ColumnDimensions)
	numColumns := colTopo.Size()

	l := &Layer{
		Params:           params,
		ColumnTopology:   colTopo,
		InputTopology:    inputTopo,
		depth:            params.Depth,
		Proximal:         NewSynapseGraph(params.Proximal.PermConnected),
		Distal:           NewSynapseGraph(params.Distal.PermConnected),
		rng:              NewSplitRNG(params.RandomSeed),
		duty:             NewDutyCycles(numColumns, params.DutyCyclePeriod),
		inhibitionRadius: 1,
		log:              logrus.WithField("component", "htm.layer"),
	}

	l.seedProximalPotentialPools()

	return l, nil
}

// seedProximalPotentialPools gives every column an initial randomly sampled
// potential pool over the input space within ff_potential_radius of the
// column's projected input-space position, sized by ff_init_frac, with
// permanences split between ff_perm_init_hi and ff_perm_init_lo. The
// Learning engine's segment-learning-map procedure (learning.go) grows and
// prunes on top of this bootstrap pool exactly as it does for distal
// segments; this initialization is the reason ff_potential_radius,
// ff_init_frac and ff_perm_init_hi/lo exist as recognised parameters at
// all (spec §6) even though §4.2/§4.6 describe steady-state growth alone.
// Grounded on the teacher's SpatialPooler.PotentialRadius/PotentialPct
// fields (spatialPooler.go), whose initialization the teacher's Compute
// stub never filled in.
func (l *Layer) seedProximalPotentialPools() {
	inputSize := l.InputTopology.Size()
	columnSize := l.ColumnTopology.Size()
	if inputSize == 0 || columnSize == 0 {
		return
	}
	longestInputDim := 0
	for _, d := range l.InputTopology.Dimensions() {
		if d > longestInputDim {
			longestInputDim = d
		}
	}
	radius := int(l.Params.Proximal.FFPotentialRadius * float64(longestInputDim))
	if radius <= 0 {
		radius = longestInputDim
	}

	for c := 0; c < columnSize; c++ {
		rng := l.rng.Split()

		center := (c * inputSize) / columnSize
		lo := center - radius
		hi := center + radius
		if lo < 0 {
			lo = 0
		}
		if hi > inputSize-1 {
			hi = inputSize - 1
		}
		poolWidth := hi - lo + 1

		poolSize := int(l.Params.Proximal.FFInitFrac * float64(poolWidth))
		if poolSize <= 0 {
			poolSize = 1
		}

		target := SegPath{Column: ColumnID(c), Cell: 0, Segment: 0}
		seen := make(map[Bit]struct{})
		for i := 0; i < poolSize; i++ {
			src := Bit(lo + rng.Intn(poolWidth))
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			perm := l.Params.Proximal.FFPermInitLo
			if rng.Float64() < 0.5 {
				perm = l.Params.Proximal.FFPermInitHi
			}
			l.Proximal.addSynapse(target, src, perm)
		}
	}
}

// LayerState is the read-only observation projection per spec §6.
type LayerState struct {
	Timestep             int
	ActiveColumns        map[ColumnID]struct{}
	BurstingColumns      map[ColumnID]struct{}
	ActiveCells          map[CellID]struct{}
	WinnerCells          map[ColumnID]CellID
	PredictiveCells      map[CellID]struct{} // nil until first depolarise this step
	PriorPredictiveCells map[CellID]struct{}
	InFFBits             map[Bit]struct{}
	InStableFFBits       map[Bit]struct{}
	OutFFBits            map[int]struct{}
	OutStableFFBits      map[int]struct{}
}

// State returns the current observation projection.
func (l *Layer) State() LayerState {
	s := LayerState{Timestep: l.timestep}
	if l.active != nil {
		s.ActiveColumns = l.active.ActiveColumns
		s.BurstingColumns = l.active.BurstingColumns
		s.ActiveCells = l.active.ActiveCells
		s.WinnerCells = l.active.WinnerCells
		s.InFFBits = l.active.InFFBits
		s.InStableFFBits = l.active.InStableFFBits
		s.OutFFBits = l.active.OutFFBits
		s.OutStableFFBits = l.active.OutStableFFBits
	}
	if l.distalState != nil && l.distalState.Timestep == l.timestep {
		s.PredictiveCells = l.distalState.PredictedCells
	}
	if l.priorDistalState != nil {
		s.PriorPredictiveCells = l.priorDistalState.PredictedCells
	}
	return s
}

// BreakKind names the three interrupt operations of §4.8.
type BreakKind int

const (
	BreakTM BreakKind = iota
	BreakTP
	BreakWinners
)

// Break implements the three interrupt operations per spec §4.8.
func (l *Layer) Break(kind BreakKind) {
	switch kind {
	case BreakTM:
		l.distalState = nil
		l.priorDistalState = nil
	case BreakTP:
		if l.active != nil {
			l.active.TPExc = map[CellID]float64{}
		}
	case BreakWinners:
		if l.active != nil {
			l.active.WinnerCells = map[ColumnID]CellID{}
		}
	}
}
