package htm

import (
	"math"
	"sort"
)

// Activate runs the activation engine (spec §4.5) for one timestep: it
// computes proximal overlaps, merges temporal-pooling excitation,
// inhibits to select active columns, selects cells within each active
// column, and identifies winners and bursting columns.
//
// Grounded on the teacher's TemporalPooler.inferPhase1 (temporalPooler.go)
// two-phase predict-then-activate/burst structure, generalized into the
// spec's single pipeline.
func (l *Layer) Activate(ffBits, stableFFBits map[Bit]struct{}) error {
	inputSize := l.InputTopology.Size()
	for b := range ffBits {
		if int(b) < 0 || int(b) >= inputSize {
			return preconditionErrorf("activate: ff bit %d out of range [0,%d)", b, inputSize)
		}
	}
	for b := range stableFFBits {
		if _, ok := ffBits[b]; !ok {
			return preconditionErrorf("activate: stable_ff_bits must be a subset of ff_bits (bit %d)", b)
		}
	}

	l.timestep++
	numColumns := l.ColumnTopology.Size()

	// Rotate first, so every l.prevActive read below sees the previous step.
	l.prevActive = l.active

	// 1. Proximal excitation: raw (unfiltered) counts, then threshold for
	// the inhibition-facing column excitation.
	rawExc := l.Proximal.Excitations(ffBits, 0)
	colRawExc := make(map[ColumnID]int, numColumns)
	bestMatching := make(map[ColumnID]SegPath)
	for path, count := range rawExc {
		if cur, ok := colRawExc[path.Column]; !ok || count > cur {
			colRawExc[path.Column] = count
			bestMatching[path.Column] = path
		}
	}

	wellMatchingColumns := make(map[ColumnID]struct{})
	colExc := make(map[ColumnID]float64)
	for col, count := range colRawExc {
		if count >= l.Params.Proximal.NewSynapseCount {
			wellMatchingColumns[col] = struct{}{}
		}
		if count >= l.Params.Proximal.StimulusThreshold {
			colExc[col] = float64(count)
		}
	}

	// 2. Engagement gate.
	firstLevel := l.Params.Proximal.MaxSegments == 1
	prevEngaged := l.prevActive != nil && l.prevActive.Engaged
	engaged := firstLevel || float64(len(stableFFBits)) > l.Params.StableInbitFracThreshold*float64(len(ffBits))
	newlyEngaged := firstLevel || (!prevEngaged && engaged)

	// 3. Temporal pooling excitation: inherit and decay, or start empty.
	tpExc := make(map[CellID]float64)
	if !newlyEngaged && l.prevActive != nil {
		for cell, v := range l.prevActive.TPExc {
			nv := v - l.Params.TemporalPoolingFall
			if nv > 0 {
				tpExc[cell] = nv
			}
		}
	}

	// 4. Column excitation: restrict to well-matching when not engaged, then boost.
	if !engaged {
		restricted := make(map[ColumnID]float64)
		for col, exc := range colExc {
			if _, ok := wellMatchingColumns[col]; ok {
				restricted[col] = exc
			}
		}
		colExc = restricted
	}
	colExc = l.duty.ApplyBoost(colExc)

	// 5. Absolute cell excitation.
	predDistal := l.distalState
	absCellExc := make(map[CellID]float64)
	seenColumns := make(map[ColumnID]struct{})
	for col, exc := range colExc {
		seenColumns[col] = struct{}{}
		for ci := 0; ci < l.depth; ci++ {
			cell := CellID{Column: col, Cell: CellIndex(ci)}
			score := exc
			if v, ok := tpExc[cell]; ok {
				score += v
			}
			if predDistal != nil {
				if dv, ok := predDistal.CellExc[cell]; ok {
					score += l.Params.DistalVsProximalWeight * dv
				}
			}
			absCellExc[cell] = score
		}
	}
	if l.Params.SpontaneousActivation && predDistal != nil {
		for cell, dv := range predDistal.CellExc {
			if _, ok := absCellExc[cell]; !ok {
				absCellExc[cell] = l.Params.DistalVsProximalWeight * dv
			}
		}
	}

	// 6. Active columns via inhibition over per-column max absolute excitation.
	colMaxExc := make(map[ColumnID]float64)
	for cell, score := range absCellExc {
		if cur, ok := colMaxExc[cell.Column]; !ok || score > cur {
			colMaxExc[cell.Column] = score
		}
	}

	var activationLevel float64
	if newlyEngaged || !engaged {
		activationLevel = l.Params.ActivationLevel
	} else {
		prevFrac := 0.0
		if l.prevActive != nil {
			prevFrac = l.prevActive.PrevActiveFraction
		}
		activationLevel = prevFrac + 0.5*l.Params.ActivationLevel
		if activationLevel > l.Params.ActivationLevelMax {
			activationLevel = l.Params.ActivationLevelMax
		}
	}
	nOn := nOnFor(activationLevel, numColumns)

	var activeColumns map[ColumnID]struct{}
	if l.Params.GlobalInhibition {
		activeColumns = InhibitGlobal(colMaxExc, nOn)
	} else {
		activeColumns = InhibitLocal(colMaxExc, l.ColumnTopology, l.inhibitionRadius, l.Params.InhibitionBaseDistance, nOn)
	}

	// 7. Within-column cell excitation.
	halfLearnThreshold := l.Params.Distal.LearnThreshold / 2
	withinExc := make(map[CellID]float64)
	for col := range activeColumns {
		for ci := 0; ci < l.depth; ci++ {
			cell := CellID{Column: col, Cell: CellIndex(ci)}
			var score float64
			if predDistal != nil {
				if dv, ok := predDistal.CellExc[cell]; ok {
					score = dv
					withinExc[cell] = score + tpExc[cell]
					continue
				}
			}
			wasPrevWinner := false
			if l.prevActive != nil {
				if pw, ok := l.prevActive.WinnerCells[col]; ok && pw == cell {
					wasPrevWinner = true
				}
			}
			segCount := l.countDistalSegments(cell)
			if wasPrevWinner {
				score = float64(halfLearnThreshold)
			} else if segCount > 0 && l.hasContextMatch(cell) {
				score = float64(halfLearnThreshold)
			} else if segCount > 0 {
				score = -float64(l.Params.Distal.LearnThreshold * segCount)
			} else {
				score = 0
			}
			withinExc[cell] = score + tpExc[cell]
		}
	}

	// 8. Cell selection per column.
	activeCells := make(map[CellID]struct{})
	winnerCells := make(map[ColumnID]CellID)
	burstingColumns := make(map[ColumnID]struct{})

	colsSorted := make([]ColumnID, 0, len(activeColumns))
	for c := range activeColumns {
		colsSorted = append(colsSorted, c)
	}
	sort.Slice(colsSorted, func(i, j int) bool { return colsSorted[i] < colsSorted[j] })

	for _, col := range colsSorted {
		scores := make([]float64, l.depth)
		for ci := 0; ci < l.depth; ci++ {
			scores[ci] = withinExc[CellID{Column: col, Cell: CellIndex(ci)}]
		}

		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		var best []CellIndex
		secondScore := math.Inf(-1)
		for ci, s := range scores {
			if s == max {
				best = append(best, CellIndex(ci))
			} else if s > secondScore {
				secondScore = s
			}
		}

		var prevWinner CellID
		hasPrevWinner := false
		if l.prevActive != nil {
			if pw, ok := l.prevActive.WinnerCells[col]; ok {
				prevWinner = pw
				hasPrevWinner = true
			}
		}

		var winner CellIndex
		switch {
		case hasPrevWinner && containsCellIndex(best, prevWinner.Cell):
			winner = prevWinner.Cell
		case len(best) == 1:
			winner = best[0]
		default:
			rng := l.rng.Split()
			winner = best[rng.Intn(len(best))]
		}
		winnerCell := CellID{Column: col, Cell: winner}
		winnerCells[col] = winnerCell

		var colActiveCells []CellIndex
		bursting := false
		switch {
		case max < float64(l.Params.Distal.StimulusThreshold):
			for ci := 0; ci < l.depth; ci++ {
				colActiveCells = append(colActiveCells, CellIndex(ci))
			}
			bursting = true
		case max-secondScore >= float64(l.Params.DominanceMargin):
			colActiveCells = best
		default:
			for ci, s := range scores {
				if s >= float64(l.Params.Distal.StimulusThreshold) {
					colActiveCells = append(colActiveCells, CellIndex(ci))
				}
			}
		}

		continuingTP := !newlyEngaged && hasPrevWinner && prevWinner.Cell == winner
		if continuingTP {
			bursting = len(colActiveCells) == l.depth
		} else {
			_, predicted := func() (float64, bool) {
				if predDistal == nil {
					return 0, false
				}
				v, ok := predDistal.CellExc[winnerCell]
				return v, ok
			}()
			_, inTP := tpExc[winnerCell]
			bursting = !predicted && !inTP
		}

		if bursting {
			burstingColumns[col] = struct{}{}
		}
		for _, ci := range colActiveCells {
			activeCells[CellID{Column: col, Cell: ci}] = struct{}{}
		}
	}

	// 9. Learning cells: winners excluding same-column repeats from last step.
	learningCells := make(map[CellID]struct{})
	for col, w := range winnerCells {
		cell := w
		if !newlyEngaged && l.prevActive != nil {
			if pw, ok := l.prevActive.WinnerCells[col]; ok && pw == w {
				continue
			}
		}
		learningCells[cell] = struct{}{}
	}

	// 10. Next tp-exc (higher-level layers only).
	higherLevel := l.Params.Proximal.MaxSegments > 1
	if higherLevel {
		newlyActive := make(map[CellID]struct{})
		if newlyEngaged {
			for cell := range activeCells {
				newlyActive[cell] = struct{}{}
			}
		} else {
			prevActiveCells := map[CellID]struct{}{}
			if l.prevActive != nil {
				prevActiveCells = l.prevActive.ActiveCells
			}
			for cell := range activeCells {
				if _, was := prevActiveCells[cell]; !was {
					newlyActive[cell] = struct{}{}
				}
			}
		}
		for cell := range newlyActive {
			if cur, ok := tpExc[cell]; !ok || l.Params.TemporalPoolingMaxExc > cur {
				tpExc[cell] = l.Params.TemporalPoolingMaxExc
			}
		}
	}

	// Stable-active cells: active cells excluding bursting columns' cells.
	stableActiveCells := make(map[CellID]struct{})
	for cell := range activeCells {
		if _, bursting := burstingColumns[cell.Column]; !bursting {
			stableActiveCells[cell] = struct{}{}
		}
	}

	// 11. Output bits.
	outBits := make(map[int]struct{}, len(activeCells))
	for cell := range activeCells {
		outBits[cellID(cell.Column, cell.Cell, l.depth)] = struct{}{}
	}
	outStableBits := make(map[int]struct{}, len(stableActiveCells))
	for cell := range stableActiveCells {
		outStableBits[cellID(cell.Column, cell.Cell, l.depth)] = struct{}{}
	}

	prevActiveFraction := float64(len(activeColumns)) / float64(numColumns)

	inFF := make(map[Bit]struct{}, len(ffBits))
	for b := range ffBits {
		inFF[b] = struct{}{}
	}
	inStable := make(map[Bit]struct{}, len(stableFFBits))
	for b := range stableFFBits {
		inStable[b] = struct{}{}
	}

	l.active = &ActiveState{
		Timestep:             l.timestep,
		Engaged:              engaged,
		NewlyEngaged:         newlyEngaged,
		ActiveColumns:        activeColumns,
		BurstingColumns:      burstingColumns,
		ActiveCells:          activeCells,
		WinnerCells:          winnerCells,
		StableActiveCells:    stableActiveCells,
		LearningCells:        learningCells,
		TPExc:                tpExc,
		InFFBits:             inFF,
		InStableFFBits:       inStable,
		OutFFBits:            outBits,
		OutStableFFBits:      outStableBits,
		BestMatchingProximal: bestMatching,
		WellMatchingColumns:  wellMatchingColumns,
		PrevActiveFraction:   prevActiveFraction,
	}
	l.hasActivated = true

	l.log.WithFields(map[string]interface{}{
		"timestep":     l.timestep,
		"engaged":      engaged,
		"newlyEngaged": newlyEngaged,
		"active":       len(activeColumns),
		"bursting":     len(burstingColumns),
	}).Debug("activate")

	return nil
}

func containsCellIndex(s []CellIndex, v CellIndex) bool {
	for _, c := range s {
		if c == v {
			return true
		}
	}
	return false
}

// countDistalSegments returns the number of non-empty distal segments a
// cell currently has.
func (l *Layer) countDistalSegments(cell CellID) int {
	count := 0
	for i := 0; i < l.Params.Distal.MaxSegments; i++ {
		if l.Distal.HasNonEmptySegment(SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}) {
			count++
		}
	}
	return count
}

// hasContextMatch reports whether any of the cell's distal segments has at
// least distal.learn_threshold active synapses counting even disconnected
// ones, against the prior step's active distal sources.
func (l *Layer) hasContextMatch(cell CellID) bool {
	if l.distalState == nil {
		return false
	}
	for i := 0; i < l.Params.Distal.MaxSegments; i++ {
		path := SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}
		if l.Distal.RawActivity(path, l.distalState.ActiveBits) >= l.Params.Distal.LearnThreshold {
			return true
		}
	}
	return false
}
