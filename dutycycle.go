package htm

import (
	matrix "github.com/skelterjohn/go.matrix"
	"gonum.org/v1/gonum/floats"

	"github.com/strategist922/comportex/utils"
)

// DutyCycles owns the per-column rolling activation-duty-cycle estimate and
// boost-factor vector, per spec §4.3. Grounded on the teacher's
// SpatialPooler fields (DutyCyclePeriod, MaxBoost,
// MinPctOverlapDutyCycles) in spatialPooler.go, whose
// updateBoostFactors/updateMinDutyCyclesGlobal stubs this fills in; the
// vectors themselves are carried as 1xN go.matrix.DenseMatrix instances,
// mirroring DynamicState.cellConfidence's use of the same matrix type in
// temporalPooler.go for a per-cell float vector.
type DutyCycles struct {
	numColumns int
	period     int

	activeDutyCycle *matrix.DenseMatrix
	boost           *matrix.DenseMatrix
}

// NewDutyCycles allocates duty cycles at 0 and boosts at 1.0 for every
// column.
func NewDutyCycles(numColumns, period int) *DutyCycles {
	dc := &DutyCycles{
		numColumns:      numColumns,
		period:          period,
		activeDutyCycle: matrix.Zeros(1, numColumns),
		boost:           matrix.Zeros(1, numColumns),
	}
	for c := 0; c < numColumns; c++ {
		dc.boost.Set(0, c, 1.0)
	}
	return dc
}

func (dc *DutyCycles) Boost(c ColumnID) float64 {
	return dc.boost.Get(0, int(c))
}

func (dc *DutyCycles) ActiveDutyCycle(c ColumnID) float64 {
	return dc.activeDutyCycle.Get(0, int(c))
}

// Update applies an exponential-moving-average update of the active duty
// cycle for every column, given this step's active-column set. Window is
// DutyCyclePeriod.
func (dc *DutyCycles) Update(activeColumns map[ColumnID]struct{}) {
	alpha := 1.0 / float64(dc.period)
	cur := make([]float64, dc.numColumns)
	obs := make([]float64, dc.numColumns)
	for c := 0; c < dc.numColumns; c++ {
		cur[c] = dc.activeDutyCycle.Get(0, c)
		if _, ok := activeColumns[ColumnID(c)]; ok {
			obs[c] = 1.0
		}
	}

	// new = (1-alpha)*cur + alpha*obs, done via gonum/floats in place.
	floats.Scale(1-alpha, cur)
	floats.AddScaled(cur, alpha, obs)

	for c := 0; c < dc.numColumns; c++ {
		dc.activeDutyCycle.Set(0, c, cur[c])
	}
}

// MaybeBoost recomputes boost factors every boostActiveEvery steps, per
// spec: a column whose duty cycle is below boostActiveDutyRatio times the
// max duty cycle among its inhibition-radius neighbours gets boosted
// proportionally; otherwise its boost relaxes toward 1.0. Bounded by
// [1, maxBoost].
func (dc *DutyCycles) MaybeBoost(topology *Topology, inhRadius int, boostActiveDutyRatio, maxBoost float64, timestep, boostActiveEvery int) {
	if boostActiveEvery <= 0 || timestep%boostActiveEvery != 0 {
		return
	}

	for c := 0; c < dc.numColumns; c++ {
		neighbours := topology.neighbourIndices(c, inhRadius, 0)
		vals := make([]float64, 0, len(neighbours)+1)
		vals = append(vals, dc.activeDutyCycle.Get(0, c))
		for _, n := range neighbours {
			vals = append(vals, dc.activeDutyCycle.Get(0, n))
		}
		neighbourMax := utils.MaxSliceFloat64(vals)

		target := boostActiveDutyRatio * neighbourMax
		own := dc.activeDutyCycle.Get(0, c)

		var newBoost float64
		if own < target {
			if own <= 0 {
				newBoost = maxBoost
			} else {
				newBoost = dc.boost.Get(0, c) * (target / own)
			}
			if newBoost > maxBoost {
				newBoost = maxBoost
			}
		} else {
			// relax toward 1.0
			newBoost = dc.boost.Get(0, c) - (dc.boost.Get(0, c)-1.0)*0.1
		}
		if newBoost < 1.0 {
			newBoost = 1.0
		}
		if newBoost > maxBoost {
			newBoost = maxBoost
		}
		dc.boost.Set(0, c, newBoost)
	}
}

// ApplyBoost multiplies raw per-column excitation by its boost factor.
func (dc *DutyCycles) ApplyBoost(excitation map[ColumnID]float64) map[ColumnID]float64 {
	out := make(map[ColumnID]float64, len(excitation))
	for c, e := range excitation {
		out[c] = e * dc.Boost(c)
	}
	return out
}
