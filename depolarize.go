package htm

import "sort"

// Depolarise runs the depolarisation engine (spec §4.7). It builds the
// aligned distal source vector from the layer's own just-computed active
// and winner cells (the lateral sub-range) plus the two external
// sub-ranges, computes distal excitation, and rolls the distal-state
// snapshots forward.
//
// Grounded on the teacher's TemporalPooler.inferPhase2 segment-activity
// scan (temporalPooler.go), generalized to the spec's three aligned
// sub-ranges.
func (l *Layer) Depolarise(distalFFBits, apicalFBBits, apicalFBWCBits map[Bit]struct{}) error {
	if !l.hasActivated {
		return sequencingErrorf("depolarise called before first activate")
	}

	lateralWidth := 0
	if l.Params.LateralSynapses {
		lateralWidth = l.ColumnTopology.Size() * l.depth
	}
	motorWidth := dimsProduct(l.Params.DistalMotorDimensions)
	topdownWidth := dimsProduct(l.Params.DistalTopdownDimensions)
	motorOffset := lateralWidth
	topdownOffset := lateralWidth + motorWidth
	_ = topdownWidth

	onBits := make(map[Bit]struct{})
	onLCBits := make(map[Bit]struct{})

	if lateralWidth > 0 {
		for bit := range l.active.OutFFBits {
			onBits[Bit(bit)] = struct{}{}
		}
		for _, w := range l.active.WinnerCells {
			onLCBits[Bit(cellID(w.Column, w.Cell, l.depth))] = struct{}{}
		}
	}
	for b := range distalFFBits {
		onBits[Bit(int(b)+motorOffset)] = struct{}{}
		onLCBits[Bit(int(b)+motorOffset)] = struct{}{}
	}
	if l.Params.UseFeedback {
		for b := range apicalFBBits {
			onBits[Bit(int(b)+topdownOffset)] = struct{}{}
		}
		for b := range apicalFBWCBits {
			onLCBits[Bit(int(b)+topdownOffset)] = struct{}{}
		}
	}

	rawExc := l.Distal.Excitations(onBits, 0)
	paths := make([]SegPath, 0, len(rawExc))
	for path := range rawExc {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Cell != b.Cell {
			return a.Cell < b.Cell
		}
		return a.Segment < b.Segment
	})

	cellExc := make(map[CellID]float64)
	matching := make(map[CellID]SegPath)
	wellMatching := make(map[CellID]SegPath)

	for _, path := range paths {
		count := rawExc[path]
		cell := CellID{Column: path.Column, Cell: path.Cell}
		if count < l.Params.Distal.StimulusThreshold {
			continue
		}
		// Paths are visited in ascending segment order per cell, so a
		// strict ">" here leaves ties resolved to the lowest segment index.
		if cur, ok := cellExc[cell]; !ok || float64(count) > cur {
			cellExc[cell] = float64(count)
			matching[cell] = path
			if count >= l.Params.Distal.NewSynapseCount {
				wellMatching[cell] = path
			} else {
				delete(wellMatching, cell)
			}
		}
	}

	predicted := make(map[CellID]struct{}, len(cellExc))
	for cell := range cellExc {
		predicted[cell] = struct{}{}
	}

	l.priorDistalState = l.distalState
	l.distalState = &DistalState{
		Timestep:             l.timestep,
		CellExc:              cellExc,
		PredictedCells:       predicted,
		MatchingSegments:     matching,
		WellMatchingSegments: wellMatching,
		ActiveBits:           onBits,
		LearnableBits:        onLCBits,
	}
	l.hasDepolarised = true

	l.log.WithFields(map[string]interface{}{
		"timestep":  l.timestep,
		"predicted": len(predicted),
	}).Debug("depolarise")

	return nil
}

// DepolariseSimple is the single-argument convenience form noted as an
// Open Question resolution in spec §9: distal_ff_bits = arg, apical
// sub-ranges empty.
func (l *Layer) DepolariseSimple(distalBits map[Bit]struct{}) error {
	return l.Depolarise(distalBits, nil, nil)
}
