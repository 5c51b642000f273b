package htm

import (
	"sort"
)

// SynapseGraph is a sparse map from each target segment to its source-bit
// to permanence mapping, plus a reverse index for efficient excitation
// queries. One instance serves as the proximal (column) graph; another,
// configured with cell-shaped targets, serves as the distal or apical
// graph -- per the Design Note "Polymorphism over segment owners", both
// are the same type, not a base/derived pair.
//
// Grounded on the teacher's Segment/Synapse pair (segment.go,
// segmentUpdate.go), restructured from a slice-of-synapses-per-segment
// into the spec's sparse map-of-maps.
type SynapseGraph struct {
	permConnected float64

	forward map[SegPath]map[Bit]float64
	// reverse[source] is the set of segments that have any synapse (connected
	// or not) from that source.
	reverse map[Bit]map[SegPath]struct{}
}

// NewSynapseGraph constructs an empty graph. permConnected is the
// threshold above (inclusive) which a synapse is "connected".
func NewSynapseGraph(permConnected float64) *SynapseGraph {
	return &SynapseGraph{
		permConnected: permConnected,
		forward:       make(map[SegPath]map[Bit]float64),
		reverse:       make(map[Bit]map[SegPath]struct{}),
	}
}

// InSynapses returns the segment's source->permanence mapping, or an empty
// (non-nil) map if the target has no synapses.
func (g *SynapseGraph) InSynapses(target SegPath) map[Bit]float64 {
	if syn, ok := g.forward[target]; ok {
		return syn
	}
	return map[Bit]float64{}
}

// SourcesConnectedTo returns the source ids with permanence >= perm_connected
// on the given target.
func (g *SynapseGraph) SourcesConnectedTo(target SegPath) []Bit {
	var out []Bit
	for src, perm := range g.forward[target] {
		if perm >= g.permConnected {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TargetsConnectedFrom is the reverse index: every segment with any
// synapse (connected or not) sourced from the given bit.
func (g *SynapseGraph) TargetsConnectedFrom(source Bit) []SegPath {
	targets := g.reverse[source]
	out := make([]SegPath, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	return out
}

// HasNonEmptySegment reports whether target currently has any synapses at
// all (used by the learning engine's segment-count / culling logic).
func (g *SynapseGraph) HasNonEmptySegment(target SegPath) bool {
	syn, ok := g.forward[target]
	return ok && len(syn) > 0
}

// Excitations computes, for every segment reachable from activeSources via
// a connected synapse, the count of active connected synapses. Segments
// whose count is below stimulusThreshold are omitted.
func (g *SynapseGraph) Excitations(activeSources map[Bit]struct{}, stimulusThreshold int) map[SegPath]int {
	counts := make(map[SegPath]int)
	for src := range activeSources {
		for target := range g.reverse[src] {
			if perm, ok := g.forward[target][src]; ok && perm >= g.permConnected {
				counts[target]++
			}
		}
	}
	if stimulusThreshold <= 0 {
		return counts
	}
	for t, c := range counts {
		if c < stimulusThreshold {
			delete(counts, t)
		}
	}
	return counts
}

// RawActivity counts active sources among ALL of a segment's synapses
// (connected or not) -- used by the learning engine's best-matching-segment
// search, which the spec requires to run with pcon=0.
func (g *SynapseGraph) RawActivity(target SegPath, activeSources map[Bit]struct{}) int {
	count := 0
	for src := range g.forward[target] {
		if _, ok := activeSources[src]; ok {
			count++
		}
	}
	return count
}

// addSynapse is an internal helper shared by bulk-learn growth and direct
// construction (e.g. initializing proximal potential pools).
func (g *SynapseGraph) addSynapse(target SegPath, source Bit, perm float64) {
	syn, ok := g.forward[target]
	if !ok {
		syn = make(map[Bit]float64)
		g.forward[target] = syn
	}
	syn[source] = clampPerm(perm)

	rev, ok := g.reverse[source]
	if !ok {
		rev = make(map[SegPath]struct{})
		g.reverse[source] = rev
	}
	rev[target] = struct{}{}
}

func (g *SynapseGraph) removeSynapse(target SegPath, source Bit) {
	if syn, ok := g.forward[target]; ok {
		delete(syn, source)
		if len(syn) == 0 {
			delete(g.forward, target)
		}
	}
	if rev, ok := g.reverse[source]; ok {
		delete(rev, target)
		if len(rev) == 0 {
			delete(g.reverse, source)
		}
	}
}

// removeTarget deletes every synapse owned by target.
func (g *SynapseGraph) removeTarget(target SegPath) {
	for src := range g.forward[target] {
		if rev, ok := g.reverse[src]; ok {
			delete(rev, target)
			if len(rev) == 0 {
				delete(g.reverse, src)
			}
		}
	}
	delete(g.forward, target)
}

func clampPerm(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// BulkLearn applies a batch of SegUpdates per spec §4.2. Two updates
// targeting the same segment in one batch are a precondition violation
// (the Learning engine guarantees at most one update per target per call).
func (g *SynapseGraph) BulkLearn(updates []SegUpdate, activeSources map[Bit]struct{}, pinc, pdec, pinit float64) error {
	seen := make(map[SegPath]struct{}, len(updates))
	for _, u := range updates {
		if _, dup := seen[u.Target]; dup {
			return preconditionErrorf("bulk_learn: duplicate target %+v in batch", u.Target)
		}
		seen[u.Target] = struct{}{}

		for src := range u.DieSources {
			if _, ok := g.forward[u.Target][src]; !ok {
				return preconditionErrorf("bulk_learn: die-source %d absent from target %+v", src, u.Target)
			}
		}
		for src := range u.GrowSources {
			if _, ok := g.forward[u.Target][src]; ok {
				return preconditionErrorf("bulk_learn: grow-source %d already present on target %+v", src, u.Target)
			}
		}
	}

	for _, u := range updates {
		switch u.Op {
		case OpLearn:
			g.applyDelta(u.Target, activeSources, pinc, -pdec)
			for src := range u.GrowSources {
				g.addSynapse(u.Target, src, pinit)
			}
			for src := range u.DieSources {
				g.removeSynapse(u.Target, src)
			}
		case OpReinforce:
			g.applyDelta(u.Target, activeSources, pinc, -pdec)
		case OpPunish:
			g.applyDelta(u.Target, activeSources, -pdec, 0)
		}
	}
	return nil
}

// applyDelta adds activeDelta to every existing synapse on target whose
// source is active, and otherExistingDelta to every other existing
// synapse, clamping to [0,1].
func (g *SynapseGraph) applyDelta(target SegPath, activeSources map[Bit]struct{}, activeDelta, otherExistingDelta float64) {
	syn, ok := g.forward[target]
	if !ok {
		return
	}
	for src, perm := range syn {
		if _, active := activeSources[src]; active {
			syn[src] = clampPerm(perm + activeDelta)
		} else if otherExistingDelta != 0 {
			syn[src] = clampPerm(perm + otherExistingDelta)
		}
	}
}
