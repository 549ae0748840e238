package report

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/airtrace/probelink-engine/internal/heuristics"
	"github.com/airtrace/probelink-engine/internal/metrics"
	"github.com/airtrace/probelink-engine/internal/pipeline"
)

// ThresholdSweep runs the exact-set pipeline across similarity thresholds
// from..to inclusive at the given step, returning one row per operating
// point. Steps are counted, not accumulated, so a 0.05 step never drifts.
func ThresholdSweep(ctx context.Context, provider pipeline.DataProvider, truth metrics.GroundTruthSource, opts pipeline.Options, from, to, step float64) ([]Row, error) {
	if step <= 0 {
		return nil, fmt.Errorf("report: sweep step must be positive, got %v", step)
	}
	if from > to {
		return nil, fmt.Errorf("report: sweep range [%v,%v] is empty", from, to)
	}

	opts.Mode = heuristics.ModeExactSet

	var rows []Row
	steps := int(math.Round((to - from) / step))
	for i := 0; i <= steps; i++ {
		threshold := from + float64(i)*step
		if threshold > to {
			threshold = to
		}
		opts.Threshold = threshold

		log.WithField("threshold", threshold).Info("sweep point")
		record, err := pipeline.Run(ctx, provider, truth, opts)
		if err != nil {
			return nil, fmt.Errorf("report: threshold %v: %w", threshold, err)
		}
		rows = append(rows, Row{Parameter: threshold, Record: record})
	}
	return rows, nil
}

// NGramSweep runs the ordered-ngram pipeline for every window size in
// [from, to].
func NGramSweep(ctx context.Context, provider pipeline.DataProvider, truth metrics.GroundTruthSource, opts pipeline.Options, from, to int) ([]Row, error) {
	if from < 2 {
		return nil, fmt.Errorf("report: ngram sweep must start at 2 or above, got %d", from)
	}
	if from > to {
		return nil, fmt.Errorf("report: ngram sweep range [%d,%d] is empty", from, to)
	}

	opts.Mode = heuristics.ModeOrderedNGram

	var rows []Row
	for n := from; n <= to; n++ {
		opts.NGramSize = n

		log.WithField("n", n).Info("sweep point")
		record, err := pipeline.Run(ctx, provider, truth, opts)
		if err != nil {
			return nil, fmt.Errorf("report: ngram %d: %w", n, err)
		}
		rows = append(rows, Row{Parameter: float64(n), Record: record})
	}
	return rows, nil
}
