package htm

import (
	"sort"

	"github.com/cznic/mathutil"
)

// nOnFor computes n_on = max(1, round(activationLevel * numColumns)).
func nOnFor(activationLevel float64, numColumns int) int {
	n := int(activationLevel*float64(numColumns) + 0.5)
	return mathutil.Max(1, n)
}

// InhibitGlobal selects the top nOn columns by excitation, ties broken by
// ascending column id. Grounded on the teacher's inhibitColumnsGlobal stub
// name in spatialPooler.go.
func InhibitGlobal(excitation map[ColumnID]float64, nOn int) map[ColumnID]struct{} {
	type scored struct {
		col ColumnID
		exc float64
	}
	all := make([]scored, 0, len(excitation))
	for c, e := range excitation {
		all = append(all, scored{c, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].exc != all[j].exc {
			return all[i].exc > all[j].exc
		}
		return all[i].col < all[j].col
	})

	if nOn > len(all) {
		nOn = len(all)
	}
	result := make(map[ColumnID]struct{}, nOn)
	for i := 0; i < nOn; i++ {
		result[all[i].col] = struct{}{}
	}
	return result
}

// InhibitLocal admits candidates in descending-excitation order, skipping
// any candidate that has an already-admitted neighbour (within inhRadius,
// excluding baseDistance) with strictly higher excitation, until nOn are
// admitted. Grounded on the same spatialPooler.go stub, generalized to the
// annular Topology.Neighbours enumeration from §4.1.
func InhibitLocal(excitation map[ColumnID]float64, topology *Topology, inhRadius, baseDistance, nOn int) map[ColumnID]struct{} {
	type scored struct {
		col ColumnID
		exc float64
	}
	all := make([]scored, 0, len(excitation))
	for c, e := range excitation {
		all = append(all, scored{c, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].exc != all[j].exc {
			return all[i].exc > all[j].exc
		}
		return all[i].col < all[j].col
	})

	admitted := make(map[ColumnID]struct{})
	for _, cand := range all {
		if len(admitted) >= nOn {
			break
		}
		neighbours := topology.neighbourIndices(int(cand.col), inhRadius, baseDistance)
		outranked := false
		for _, n := range neighbours {
			nc := ColumnID(n)
			if _, ok := admitted[nc]; ok && excitation[nc] > cand.exc {
				outranked = true
				break
			}
		}
		if !outranked {
			admitted[cand.col] = struct{}{}
		}
	}
	return admitted
}

// RecomputeInhibitionRadius derives the inhibition radius from the average
// per-column span of connected proximal synapses, mapped onto the column
// topology via the ratio of column-space to input-space extents.
func RecomputeInhibitionRadius(proximal *SynapseGraph, numColumns, depth int, columnTopology, inputTopology *Topology) int {
	totalSpan := 0.0
	counted := 0
	for c := 0; c < numColumns; c++ {
		target := SegPath{Column: ColumnID(c), Cell: 0, Segment: 0}
		sources := proximal.SourcesConnectedTo(target)
		if len(sources) == 0 {
			continue
		}
		min, max := int(sources[0]), int(sources[0])
		for _, s := range sources {
			if int(s) < min {
				min = int(s)
			}
			if int(s) > max {
				max = int(s)
			}
		}
		totalSpan += float64(max - min + 1)
		counted++
	}
	if counted == 0 {
		return 1
	}
	avgSpanInput := totalSpan / float64(counted)

	inputSize := float64(inputTopology.Size())
	columnSize := float64(columnTopology.Size())
	if inputSize <= 0 {
		return 1
	}
	radius := int(avgSpanInput * (columnSize / inputSize) / 2)
	return mathutil.Max(1, radius)
}
