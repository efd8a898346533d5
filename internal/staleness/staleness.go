// Package staleness classifies each check as Verified, Unverified (with a
// reason), Untracked, Aggregate, or SubProject by comparing the current
// config_hash/content_hash against the last recorded verify.lock entry
// (spec.md §4.4). The reason taxonomy and the counter-per-reason metrics
// pattern are grounded on AleutianLocal's trace cache staleness checker
// (other_examples), adapted from its single-cache-entry model to this
// engine's whole-project, dependency-aware resolution.
package staleness

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/store"
)

// Reason names why a check is Unverified. Order here is precedence order,
// most specific first: a check that matches multiple reasons is reported
// under the highest-precedence one (spec.md §4.4).
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNeverRun
	ReasonConfigChanged
	ReasonDependencyUnverified
	ReasonFilesChanged
)

func (r Reason) String() string {
	switch r {
	case ReasonNeverRun:
		return "NeverRun"
	case ReasonConfigChanged:
		return "ConfigChanged"
	case ReasonDependencyUnverified:
		return "DependencyUnverified"
	case ReasonFilesChanged:
		return "FilesChanged"
	default:
		return "None"
	}
}

// Status is the resolved classification for one check.
type Status struct {
	Classification  model.Classification
	Reason          Reason // meaningful only for a Tracked or Aggregate check that is not Verified
	Verified        bool   // true for a fresh Tracked check, or an Aggregate whose dependencies all verified
	StaleFiles      []string
	StaleDependency string // set when Reason == ReasonDependencyUnverified, names the offending dependency
}

var (
	checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "staleness_checks_total",
		Help:      "Total staleness resolutions, labeled by resulting reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(checksTotal)
}

// Resolver resolves staleness for every check in a graph against a lock
// document. It holds no mutable state beyond the lock document snapshot
// and is safe to call concurrently from multiple goroutines since it never
// writes through Resolve.
type Resolver struct {
	doc *store.Document
}

// NewResolver builds a Resolver over a point-in-time lock document
// snapshot.
func NewResolver(doc *store.Document) *Resolver {
	return &Resolver{doc: doc}
}

// Resolve classifies a single check. currentConfigHash/currentContentHash
// are the freshly computed hashes for this run; dependencyStatuses holds
// the already-resolved Status of every check this one depends on (the
// caller must resolve in wave order so dependencies are always already
// known). staleFiles is the subset of matched files whose fingerprint
// changed since the last recorded run, used for PerFile incremental
// execution; it may be nil for non-PerFile checks.
func (r *Resolver) Resolve(def model.CheckDef, currentConfigHash, currentContentHash string, dependencyStatuses map[string]Status, staleFiles []string) Status {
	class := model.Classify(def)

	switch class {
	case model.Aggregate:
		st := Status{Classification: model.Aggregate}
		if dep, unverified := r.firstUnverifiedDependency(def, dependencyStatuses); unverified {
			st.Reason = ReasonDependencyUnverified
			st.StaleDependency = dep
		} else {
			st.Verified = true
		}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	case model.SubProject:
		st := Status{Classification: model.SubProject}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	case model.Untracked:
		st := Status{Classification: model.Untracked}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	}

	entry, ok := r.doc.Checks[def.Name]
	if !ok || entry.ContentHash == "" {
		st := Status{Classification: model.Tracked, Reason: ReasonNeverRun, StaleFiles: staleFiles}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	}
	if entry.ConfigHash != currentConfigHash {
		st := Status{Classification: model.Tracked, Reason: ReasonConfigChanged, StaleFiles: staleFiles}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	}
	if dep, unverified := r.firstUnverifiedDependency(def, dependencyStatuses); unverified {
		st := Status{Classification: model.Tracked, Reason: ReasonDependencyUnverified, StaleFiles: staleFiles, StaleDependency: dep}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	}
	if entry.ContentHash != currentContentHash {
		st := Status{Classification: model.Tracked, Reason: ReasonFilesChanged, StaleFiles: staleFiles}
		checksTotal.WithLabelValues(st.reasonLabel()).Inc()
		return st
	}

	st := Status{Classification: model.Tracked, Verified: true}
	checksTotal.WithLabelValues(st.reasonLabel()).Inc()
	return st
}

// firstUnverifiedDependency returns the name of the first dependency, in
// def.DependsOn's declared order, that has a resolved status and is not
// verified, so Resolve can report spec.md §4.4's offending dependency
// alongside the DependencyUnverified reason.
func (r *Resolver) firstUnverifiedDependency(def model.CheckDef, statuses map[string]Status) (string, bool) {
	for _, dep := range def.DependsOn {
		st, ok := statuses[dep]
		if !ok {
			continue
		}
		if st.Classification == model.SubProject {
			continue
		}
		if !st.Verified {
			return dep, true
		}
	}
	return "", false
}

func (s Status) reasonLabel() string {
	if s.Classification != model.Tracked {
		return s.Classification.String()
	}
	if s.Verified {
		return "Verified"
	}
	return s.Reason.String()
}
