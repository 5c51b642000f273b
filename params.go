package htm

// ProximalParams configures the column-level proximal synapse graph.
// Field names and defaults follow spec §6 "Proximal (map)".
type ProximalParams struct {
	MaxSegments       int
	MaxSynapseCount   int
	NewSynapseCount   int
	StimulusThreshold int
	LearnThreshold    int
	PermInc           float64
	PermStableInc     float64
	PermDec           float64
	PermConnected     float64
	PermInit          float64
	FFPotentialRadius float64
	FFInitFrac        float64
	FFPermInitHi      float64
	FFPermInitLo      float64
}

// DefaultProximalParams returns the documented defaults.
func DefaultProximalParams() ProximalParams {
	return ProximalParams{
		MaxSegments:       1,
		MaxSynapseCount:   300,
		NewSynapseCount:   12,
		StimulusThreshold: 2,
		LearnThreshold:    7,
		PermInc:           0.04,
		PermStableInc:     0.15,
		PermDec:           0.01,
		PermConnected:     0.20,
		PermInit:          0.16,
		FFPotentialRadius: 1.0,
		FFInitFrac:        0.25,
		FFPermInitHi:      0.25,
		FFPermInitLo:      0.10,
	}
}

// DistalParams configures a cell-level distal (or apical) synapse graph.
// Field names and defaults follow spec §6 "Distal (map)".
type DistalParams struct {
	MaxSegments       int
	MaxSynapseCount   int
	NewSynapseCount   int
	StimulusThreshold int
	LearnThreshold    int
	PermInc           float64
	PermStableInc     float64
	PermDec           float64
	PermPunish        float64
	PermConnected     float64
	PermInit          float64
	Punish            bool
}

// DefaultDistalParams returns the documented defaults.
func DefaultDistalParams() DistalParams {
	return DistalParams{
		MaxSegments:       5,
		MaxSynapseCount:   22,
		NewSynapseCount:   12,
		StimulusThreshold: 9,
		LearnThreshold:    7,
		PermInc:           0.05,
		PermStableInc:     0.05,
		PermDec:           0.01,
		PermPunish:        0.002,
		PermConnected:     0.20,
		PermInit:          0.16,
		Punish:            true,
	}
}

// LayerParams is the full recognised parameter set for one layer, per
// spec §6.
type LayerParams struct {
	InputDimensions []int
	ColumnDimensions []int
	Depth            int

	DistalMotorDimensions   []int
	DistalTopdownDimensions []int

	LateralSynapses bool
	UseFeedback     bool

	Proximal ProximalParams
	Distal   DistalParams

	ActivationLevel        float64
	ActivationLevelMax     float64
	GlobalInhibition       bool
	InhibitionBaseDistance int
	MaxBoost               float64
	DutyCyclePeriod        int
	BoostActiveDutyRatio   float64
	BoostActiveEvery       int
	InhRadiusEvery         int

	DistalVsProximalWeight   float64
	SpontaneousActivation    bool
	DominanceMargin          int
	StableInbitFracThreshold float64
	TemporalPoolingMaxExc    float64
	TemporalPoolingFall      float64
	RandomSeed               int64
}

// DefaultLayerParams returns the documented defaults. InputDimensions must
// still be set by the caller -- it has no default.
func DefaultLayerParams() LayerParams {
	return LayerParams{
		ColumnDimensions:         []int{1000},
		Depth:                    5,
		DistalMotorDimensions:    []int{0},
		DistalTopdownDimensions:  []int{0},
		LateralSynapses:          true,
		UseFeedback:              false,
		Proximal:                DefaultProximalParams(),
		Distal:                  DefaultDistalParams(),
		ActivationLevel:          0.02,
		ActivationLevelMax:       0.10,
		GlobalInhibition:         true,
		InhibitionBaseDistance:   1,
		MaxBoost:                 1.5,
		DutyCyclePeriod:          1000,
		BoostActiveDutyRatio:     0.001,
		BoostActiveEvery:         1000,
		InhRadiusEvery:           1000,
		DistalVsProximalWeight:   0.0,
		SpontaneousActivation:    false,
		DominanceMargin:          4,
		StableInbitFracThreshold: 0.5,
		TemporalPoolingMaxExc:    50.0,
		TemporalPoolingFall:      5.0,
		RandomSeed:               42,
	}
}

func dimsProduct(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// Validate implements spec §7's Configuration error class.
func (p *LayerParams) Validate() error {
	if len(p.InputDimensions) == 0 {
		return configErrorf("input_dimensions must be set")
	}
	for _, d := range p.InputDimensions {
		if d <= 0 {
			return configErrorf("input_dimensions must be positive, got %d", d)
		}
	}
	if len(p.ColumnDimensions) == 0 {
		return configErrorf("column_dimensions must be set")
	}
	for _, d := range p.ColumnDimensions {
		if d <= 0 {
			return configErrorf("column_dimensions must be positive, got %d", d)
		}
	}
	if p.Depth <= 0 {
		return configErrorf("depth must be positive, got %d", p.Depth)
	}
	if err := validatePermSet("proximal", p.Proximal.PermInc, p.Proximal.PermStableInc, p.Proximal.PermDec, p.Proximal.PermConnected, p.Proximal.PermInit); err != nil {
		return err
	}
	if err := validatePermSet("distal", p.Distal.PermInc, p.Distal.PermStableInc, p.Distal.PermDec, p.Distal.PermConnected, p.Distal.PermInit); err != nil {
		return err
	}
	if p.Proximal.StimulusThreshold < 0 || p.Proximal.LearnThreshold < 0 {
		return configErrorf("proximal thresholds must be non-negative")
	}
	if p.Distal.StimulusThreshold < 0 || p.Distal.LearnThreshold < 0 {
		return configErrorf("distal thresholds must be non-negative")
	}
	if p.Distal.PermPunish < 0 {
		return configErrorf("distal perm_punish must be non-negative")
	}
	if p.Proximal.MaxSegments <= 0 || p.Distal.MaxSegments <= 0 {
		return configErrorf("max_segments must be positive")
	}
	return nil
}

func validatePermSet(label string, vals ...float64) error {
	for _, v := range vals {
		if v < 0 || v > 1 {
			return configErrorf("%s permanence value %f out of [0,1]", label, v)
		}
	}
	return nil
}
