// Package cache decides, unit by unit, whether a prior publication
// can be reused instead of paying for a fresh inscription.
//
// A unit is reusable only when its content fingerprint matches the
// prior deployment AND, if it has dependencies, its dependency
// fingerprint over the dependencies' current access paths matches the
// one recorded when it was last published. Because access paths are
// content-addressed, this propagates invalidation transitively: a
// changed dependency gets a new access path, which changes every
// dependent's dependency fingerprint, wave by wave.
package cache

import (
	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/manifest"
	"github.com/chainpress/chainpress/internal/publish"
)

// Evaluator answers reuse questions against one prior deployment
// record. A nil or empty prior record means nothing is reusable.
type Evaluator struct {
	prior map[string]manifest.PublishedUnit
}

// NewEvaluator indexes the prior record's units by path.
func NewEvaluator(prev *manifest.DeploymentRecord) *Evaluator {
	ev := &Evaluator{prior: make(map[string]manifest.PublishedUnit)}
	if prev == nil {
		return ev
	}
	for _, u := range prev.Units {
		ev.prior[u.Path] = u
	}
	return ev
}

// Len returns the number of prior units available for reuse.
func (ev *Evaluator) Len() int {
	return len(ev.prior)
}

// Evaluate reports whether the unit's prior publication is still
// valid. deps are the unit's dependency paths; dependencies publish in
// earlier waves, so by evaluation time their access paths are resolved
// in access unless the edge was broken out of a cycle. On reuse the
// returned unit is the prior one verbatim, chunk manifest included,
// with Cached set.
func (ev *Evaluator) Evaluate(unit *analyze.ContentUnit, deps []string, access *publish.AccessMap) (manifest.PublishedUnit, bool) {
	prev, ok := ev.prior[unit.Path]
	if !ok || prev.TxID == "" {
		return manifest.PublishedUnit{}, false
	}
	if prev.Fingerprint != unit.Fingerprint {
		return manifest.PublishedUnit{}, false
	}
	if len(deps) > 0 {
		if prev.DepsFingerprint == "" {
			// Prior record predates dependency tracking for this
			// unit; republish rather than trust it.
			return manifest.PublishedUnit{}, false
		}
		snap := access.Snapshot()
		for _, d := range deps {
			if snap[d] == "" {
				// An unresolved dependency sits on a broken cycle
				// edge. It hashed as empty when the prior fingerprint
				// was recorded too, so a match here would say nothing
				// about whether the dependency changed. Republish.
				return manifest.PublishedUnit{}, false
			}
		}
		if fingerprint.Dependencies(deps, snap) != prev.DepsFingerprint {
			return manifest.PublishedUnit{}, false
		}
	}

	prev.Cached = true
	return prev, true
}
