package htm

import (
	"math/rand"
	"sort"
)

// Learn runs the learning engine (spec §4.6): for each learning cell it
// chooses a segment to reinforce or grow, emits SegUpdates, applies
// punishment to mis-predicting segments, and invokes the two
// SynapseGraphs' bulk_learn. Grounded on the teacher's
// addToSegmentUpdates/adaptSegments pipeline (segmentUpdate.go).
func (l *Layer) Learn() error {
	if !l.hasActivated {
		return sequencingErrorf("learn called before first activate")
	}

	active := l.active
	predDistal := l.distalState // the prediction that led to this step's activation

	var distalActive, distalLearnable map[Bit]struct{}
	if predDistal != nil {
		distalActive = predDistal.ActiveBits
		distalLearnable = predDistal.LearnableBits
	} else {
		distalActive = map[Bit]struct{}{}
		distalLearnable = map[Bit]struct{}{}
	}

	// Distal learning, one update per learning cell.
	learningCells := sortedCellIDs(active.LearningCells)
	var distalUpdates []SegUpdate
	for _, cell := range learningCells {
		var forced *SegPath
		if predDistal != nil {
			if seg, ok := predDistal.WellMatchingSegments[cell]; ok {
				forced = &seg
			}
		}
		upd := l.segmentLearningMap(cell, l.Distal, l.Params.Distal.MaxSegments,
			l.Params.Distal.MaxSynapseCount, l.Params.Distal.NewSynapseCount,
			l.Params.Distal.LearnThreshold, forced, distalActive, distalLearnable,
			l.Params.Distal.PermInit, l.rng.Split())
		if upd != nil {
			distalUpdates = append(distalUpdates, *upd)
		}
	}
	if err := l.Distal.BulkLearn(distalUpdates, distalActive, l.Params.Distal.PermInc, l.Params.Distal.PermDec, l.Params.Distal.PermInit); err != nil {
		return err
	}

	// Punishment: cells predicted entering this step but neither active now
	// nor re-predicted. The new prediction for the step after this one does
	// not exist yet at learn-time (Depolarise runs after Learn), so "not
	// predicted now" is vacuous here -- see DESIGN.md for this resolution
	// of an otherwise-ambiguous spec clause.
	var punishUpdates []SegUpdate
	if l.Params.Distal.Punish && predDistal != nil {
		for cell := range predDistal.PredictedCells {
			if _, stillActive := active.ActiveCells[cell]; stillActive {
				continue
			}
			for i := 0; i < l.Params.Distal.MaxSegments; i++ {
				path := SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}
				if !l.Distal.HasNonEmptySegment(path) {
					continue
				}
				if l.Distal.RawActivity(path, distalActive) >= l.Params.Distal.StimulusThreshold {
					punishUpdates = append(punishUpdates, SegUpdate{Target: path, Op: OpPunish})
				}
			}
		}
	}
	if err := l.Distal.BulkLearn(punishUpdates, distalActive, 0, l.Params.Distal.PermPunish, 0); err != nil {
		return err
	}

	// Proximal learning, only while engaged.
	var proximalUpdates []SegUpdate
	if active.Engaged {
		higherLevel := l.Params.Proximal.MaxSegments > 1
		learnableFF := active.InFFBits
		if higherLevel {
			learnableFF = active.InStableFFBits
		}
		cols := sortedColumnIDs(active.ActiveColumns)
		for _, col := range cols {
			cell := CellID{Column: col, Cell: 0}
			upd := l.segmentLearningMap(cell, l.Proximal, l.Params.Proximal.MaxSegments,
				l.Params.Proximal.MaxSynapseCount, l.Params.Proximal.NewSynapseCount,
				l.Params.Proximal.LearnThreshold, nil, active.InFFBits, learnableFF,
				l.Params.Proximal.PermInit, l.rng.Split())
			if upd != nil {
				proximalUpdates = append(proximalUpdates, *upd)
			}
		}
	}
	if err := l.Proximal.BulkLearn(proximalUpdates, active.InFFBits, l.Params.Proximal.PermInc, l.Params.Proximal.PermDec, l.Params.Proximal.PermInit); err != nil {
		return err
	}

	// Stable-input reinforcement bonus pass.
	if l.Params.Proximal.PermStableInc > l.Params.Proximal.PermInc && len(proximalUpdates) > 0 {
		reinforce := make([]SegUpdate, 0, len(proximalUpdates))
		for _, u := range proximalUpdates {
			reinforce = append(reinforce, SegUpdate{Target: u.Target, Op: OpReinforce})
		}
		bonus := l.Params.Proximal.PermStableInc - l.Params.Proximal.PermInc
		if err := l.Proximal.BulkLearn(reinforce, active.InStableFFBits, bonus, l.Params.Proximal.PermDec, 0); err != nil {
			return err
		}
	}

	l.duty.Update(active.ActiveColumns)
	l.duty.MaybeBoost(l.ColumnTopology, l.inhibitionRadius, l.Params.BoostActiveDutyRatio, l.Params.MaxBoost, l.timestep, l.Params.BoostActiveEvery)
	if l.Params.InhRadiusEvery > 0 && l.timestep%l.Params.InhRadiusEvery == 0 {
		l.inhibitionRadius = RecomputeInhibitionRadius(l.Proximal, l.ColumnTopology.Size(), l.depth, l.ColumnTopology, l.InputTopology)
	}

	l.log.WithFields(map[string]interface{}{
		"timestep":        l.timestep,
		"distalUpdates":   len(distalUpdates),
		"punishUpdates":   len(punishUpdates),
		"proximalUpdates": len(proximalUpdates),
	}).Debug("learn")

	return nil
}

// segmentLearningMap implements the per-cell segment-choice procedure of
// spec §4.6 steps 1-6, shared by distal learning and (with cell.Cell==0)
// proximal learning. forcedSeg, when non-nil, is the well-matching segment
// from the previous depolarise (distal only; proximal always passes nil
// since columns are never depolarised).
func (l *Layer) segmentLearningMap(cell CellID, graph *SynapseGraph, maxSegments, maxSynapseCount, newSynapseCount, learnThreshold int, forcedSeg *SegPath, activeSources, learnableSources map[Bit]struct{}, permInit float64, rng *rand.Rand) *SegUpdate {
	if forcedSeg != nil {
		return &SegUpdate{Target: *forcedSeg, Op: OpLearn}
	}

	var target SegPath
	var matchExcitation int
	newSegment := false
	var culledSources map[Bit]float64

	bestIdx, bestActivity := -1, -1
	for i := 0; i < maxSegments; i++ {
		path := SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}
		if !graph.HasNonEmptySegment(path) {
			continue
		}
		activity := graph.RawActivity(path, activeSources)
		if activity >= learnThreshold && activity > bestActivity {
			bestIdx, bestActivity = i, activity
		}
	}

	if bestIdx >= 0 {
		target = SegPath{Column: cell.Column, Cell: cell.Cell, Segment: bestIdx}
		matchExcitation = bestActivity
	} else {
		newSegment = true
		idx, culled := l.newSegmentID(graph, cell, maxSegments)
		target = SegPath{Column: cell.Column, Cell: cell.Cell, Segment: idx}
		if culled {
			culledSources = graph.InSynapses(target)
		}
		matchExcitation = 0
	}

	growN := newSynapseCount - matchExcitation
	if growN < 0 {
		growN = 0
	}

	grow := sampleNewSources(rng, learnableSources, growN, graph.InSynapses(target))

	if newSegment && len(grow) < learnThreshold {
		return nil
	}

	die := make(map[Bit]struct{})
	if newSegment && culledSources != nil {
		for src := range culledSources {
			die[src] = struct{}{}
		}
	} else {
		existing := graph.InSynapses(target)
		projected := len(existing) + len(grow)
		if projected > maxSynapseCount {
			numToFree := projected - maxSynapseCount
			die = lowestPermanenceSources(existing, numToFree)
		}
	}

	return &SegUpdate{Target: target, Op: OpLearn, GrowSources: grow, DieSources: die}
}

// newSegmentID chooses the slot for a freshly grown segment: the next
// unused index if the cell has fewer than maxSegments non-empty segments,
// else the existing segment with the fewest connected synapses (ties
// broken by fewest total synapses, then lowest index).
func (l *Layer) newSegmentID(graph *SynapseGraph, cell CellID, maxSegments int) (idx int, culled bool) {
	count := 0
	for i := 0; i < maxSegments; i++ {
		path := SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}
		if graph.HasNonEmptySegment(path) {
			count++
		}
	}
	if count < maxSegments {
		return count, false
	}

	bestIdx := 0
	bestConnected := -1
	bestTotal := -1
	for i := 0; i < maxSegments; i++ {
		path := SegPath{Column: cell.Column, Cell: cell.Cell, Segment: i}
		connected := len(graph.SourcesConnectedTo(path))
		total := len(graph.InSynapses(path))
		if bestConnected == -1 || connected < bestConnected ||
			(connected == bestConnected && total < bestTotal) ||
			(connected == bestConnected && total == bestTotal && i < bestIdx) {
			bestIdx, bestConnected, bestTotal = i, connected, total
		}
	}
	return bestIdx, true
}

// sampleNewSources samples n sources with replacement from candidates,
// then dedups and removes any already present in existing.
func sampleNewSources(rng *rand.Rand, candidates map[Bit]struct{}, n int, existing map[Bit]float64) map[Bit]struct{} {
	result := make(map[Bit]struct{})
	if n <= 0 || len(candidates) == 0 {
		return result
	}
	pool := make([]Bit, 0, len(candidates))
	for b := range candidates {
		pool = append(pool, b)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })

	for i := 0; i < n; i++ {
		src := pool[rng.Intn(len(pool))]
		if _, already := existing[src]; already {
			continue
		}
		result[src] = struct{}{}
	}
	return result
}

// lowestPermanenceSources picks the n lowest-permanence sources from
// existing, ties broken by source id for determinism.
func lowestPermanenceSources(existing map[Bit]float64, n int) map[Bit]struct{} {
	type entry struct {
		src  Bit
		perm float64
	}
	entries := make([]entry, 0, len(existing))
	for s, p := range existing {
		entries = append(entries, entry{s, p})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].perm != entries[j].perm {
			return entries[i].perm < entries[j].perm
		}
		return entries[i].src < entries[j].src
	})
	if n > len(entries) {
		n = len(entries)
	}
	out := make(map[Bit]struct{}, n)
	for i := 0; i < n; i++ {
		out[entries[i].src] = struct{}{}
	}
	return out
}

func sortedCellIDs(cells map[CellID]struct{}) []CellID {
	out := make([]CellID, 0, len(cells))
	for c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Cell < out[j].Cell
	})
	return out
}

func sortedColumnIDs(cols map[ColumnID]struct{}) []ColumnID {
	out := make([]ColumnID, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
