// Package sampling computes per-scorer trace assignments for a
// monitoring run. All scorers share one deterministic ordering of the
// window, so a scorer with a lower sampling rate always evaluates a
// subset of what any higher-rate scorer evaluates.
package sampling

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"github.com/tracewatch/tracewatch/internal/models"
)

// Assignment maps each active scorer name to the trace IDs it must
// evaluate in one run. It is ephemeral: computed fresh per run and never
// persisted beyond its effects.
type Assignment map[string][]string

// Sizes returns the per-scorer assignment sizes, for recording on the run.
func (a Assignment) Sizes() map[string]int {
	sizes := make(map[string]int, len(a))
	for name, ids := range a {
		sizes[name] = len(ids)
	}
	return sizes
}

// Order returns the window's trace IDs in the shared sampling order:
// ascending by sha256(experimentID || traceID), ties broken by the raw
// trace ID. Keying the hash on the experiment keeps the order stable
// across runs even as the window grows, so a trace's sampling position
// never depends on which other traces happen to be in the window.
func Order(experimentID string, traceIDs []string) []string {
	type ranked struct {
		id   string
		rank uint64
	}

	rankedIDs := make([]ranked, 0, len(traceIDs))
	for _, id := range traceIDs {
		sum := sha256.Sum256([]byte(experimentID + "\x00" + id))
		rankedIDs = append(rankedIDs, ranked{id: id, rank: binary.BigEndian.Uint64(sum[:8])})
	}

	sort.Slice(rankedIDs, func(i, j int) bool {
		if rankedIDs[i].rank != rankedIDs[j].rank {
			return rankedIDs[i].rank < rankedIDs[j].rank
		}
		return rankedIDs[i].id < rankedIDs[j].id
	})

	out := make([]string, len(rankedIDs))
	for i, r := range rankedIDs {
		out[i] = r.id
	}
	return out
}

// Assign computes the sampling assignment for the given active scorers
// over the window. A scorer with rate r receives the first round(r*n)
// trace IDs of the shared order, which makes the monotonic-nesting
// invariant (rA <= rB implies assignment(A) is a subset of
// assignment(B)) hold by construction.
func Assign(experimentID string, scorers []models.ScorerDefinition, traceIDs []string) Assignment {
	ordered := Order(experimentID, traceIDs)
	assignment := make(Assignment, len(scorers))

	for _, def := range scorers {
		if !def.Active {
			continue
		}
		n := int(math.Round(def.SamplingRate * float64(len(ordered))))
		if n > len(ordered) {
			n = len(ordered)
		}
		assignment[def.Name] = append([]string(nil), ordered[:n]...)
	}

	return assignment
}
