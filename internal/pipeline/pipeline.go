// Package pipeline runs one clustering pass end to end: build identity
// keys, match similar keys, flood-fill clusters, optionally prune by
// fingerprint, validate against ground truth. Stages run strictly in that
// order and any stage error aborts the run with no partial output.
package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/airtrace/probelink-engine/internal/heuristics"
	"github.com/airtrace/probelink-engine/internal/metrics"
	"github.com/airtrace/probelink-engine/pkg/models"
)

// Options selects the key mode and its parameters for one run.
type Options struct {
	Mode              heuristics.Mode
	NGramSize         int
	Threshold         float64
	CheckFingerprints bool
	Workers           int
	Horizon           time.Duration
}

// DataProvider supplies the token probe sequences for one dataset.
type DataProvider interface {
	TokenProbes() (models.TokenProbes, error)
}

// filteredSeq wraps the engine's lazy cluster emission with the
// fingerprint filter, keeping validation streaming.
type filteredSeq struct {
	engine *heuristics.ClusterEngine
	probes models.TokenProbes
}

func (f *filteredSeq) Next() (models.Cluster, bool) {
	cluster, ok := f.engine.Next()
	if !ok {
		return nil, false
	}
	return heuristics.FilterFingerprintOutliers(f.probes, cluster), true
}

// Run executes one clustering pass and returns its validation record.
func Run(ctx context.Context, provider DataProvider, truth metrics.GroundTruthSource, opts Options) (*models.ValidationRecord, error) {
	probes, err := provider.TokenProbes()
	if err != nil {
		return nil, fmt.Errorf("pipeline: loading probes: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"mode":   opts.Mode,
		"tokens": len(probes),
	})
	logger.Info("building identity keys")

	var ix *heuristics.KeyIndex
	switch opts.Mode {
	case heuristics.ModeExactSet:
		ix, err = heuristics.BuildExactSetIndex(probes)
	case heuristics.ModeOrderedNGram:
		ix, err = heuristics.BuildOrderedNGramIndex(probes, opts.NGramSize)
	default:
		return nil, fmt.Errorf("pipeline: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: building keys: %w", err)
	}
	logger.WithFields(log.Fields{
		"keys":         len(ix.KeyTokens),
		"keyed_tokens": ix.TokenCount(),
	}).Info("identity keys built")

	// Ordered n-grams only link on exact tuple equality; the similarity
	// pass is an exact-set refinement.
	var similar heuristics.SimilarityIndex
	if opts.Mode == heuristics.ModeExactSet {
		similar, err = heuristics.MatchSimilarKeys(ctx, ix, opts.Threshold, opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("pipeline: matching keys: %w", err)
		}
		logger.WithFields(log.Fields{
			"threshold":   opts.Threshold,
			"linked_keys": len(similar),
		}).Info("similarity matching complete")
	}

	engine := heuristics.NewClusterEngine(ix, similar)

	var seq metrics.ClusterSeq = engine
	if opts.CheckFingerprints {
		seq = &filteredSeq{engine: engine, probes: probes}
	}

	validator := metrics.NewValidator(probes, truth, opts.Horizon)
	record, clusters, err := validator.Validate(seq)
	if err != nil {
		return nil, fmt.Errorf("pipeline: validating: %w", err)
	}
	if err := engine.Verify(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	logger.WithFields(log.Fields{
		"clusters": len(clusters),
		"tp":       record.TruePositives,
		"fp":       record.FalsePositives,
		"accuracy": record.Accuracy,
	}).Info("run complete")

	return record, nil
}
