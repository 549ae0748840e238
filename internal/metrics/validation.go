package metrics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Cluster Validator
//
// Scores a clustering against ground truth as a pairwise binary classifier:
// every unordered pair of co-clustered tokens is a positive prediction,
// true when both tokens came from the same device. Negatives are never
// enumerated; they are derived from the precomputed population totals,
// which keeps validation linear in cluster size instead of quadratic in
// the token population.
//
//   fn = valid_pairs − tp
//   tn = (total_pairs − valid_pairs) − fp
//
// The derivation only holds if the totals and the clustering describe the
// same population, so the matrix closure identities are checked and their
// violation is fatal.

// OverMergeHorizon is how long a single device plausibly keeps probing.
// A true-positive identity whose pooled probe timestamps span longer than
// this was likely over-merged across separate visits.
const OverMergeHorizon = 12 * time.Hour

// ErrMatrixClosure reports a confusion matrix that fails its closure
// identities, meaning the clustering and the pair totals disagree about
// the token population. Fatal for the run.
var ErrMatrixClosure = errors.New("confusion matrix closure violation")

// ClusterSeq yields clusters one at a time, matching the engine's lazy
// emission. Next returns ok=false after the final cluster.
type ClusterSeq interface {
	Next() (models.Cluster, bool)
}

// GroundTruthSource provides the token→identity mapping and the
// population pair totals the validator derives its negatives from.
type GroundTruthSource interface {
	GroundTruth() models.GroundTruth
	PairTotals() models.PairTotals
}

// Validator scores cluster sequences against one ground-truth dataset.
type Validator struct {
	probes  models.TokenProbes
	truth   models.GroundTruth
	totals  models.PairTotals
	horizon time.Duration
}

// NewValidator builds a validator over the dataset's probes and truth
// source. A zero horizon selects the default over-merge horizon.
func NewValidator(probes models.TokenProbes, src GroundTruthSource, horizon time.Duration) *Validator {
	if horizon <= 0 {
		horizon = OverMergeHorizon
	}
	return &Validator{
		probes:  probes,
		truth:   src.GroundTruth(),
		totals:  src.PairTotals(),
		horizon: horizon,
	}
}

// Validate consumes the full cluster sequence and returns the validation
// record. It also returns the collected clusters so callers can reuse them
// without re-running the engine.
func (v *Validator) Validate(seq ClusterSeq) (*models.ValidationRecord, []models.Cluster, error) {
	var (
		tp, fp   int64
		clusters []models.Cluster

		// Pooled true-positive probe timestamps per device identity,
		// for the over-merge span check.
		identityTimes = make(map[string][]float64)
	)

	for {
		cluster, ok := seq.Next()
		if !ok {
			break
		}
		clusters = append(clusters, cluster)

		for i := 0; i < len(cluster); i++ {
			for j := i + 1; j < len(cluster); j++ {
				a, b := cluster[i], cluster[j]
				idA, okA := v.truth[a]
				idB, okB := v.truth[b]
				if okA && okB && idA == idB {
					tp++
					identityTimes[idA] = append(identityTimes[idA],
						timestampsOf(v.probes[a])...)
					identityTimes[idA] = append(identityTimes[idA],
						timestampsOf(v.probes[b])...)
				} else {
					fp++
				}
			}
		}
	}

	fn := v.totals.ValidPairs - tp
	tn := (v.totals.TotalPairs - v.totals.ValidPairs) - fp

	if err := checkClosure(tp, fp, tn, fn, v.totals); err != nil {
		return nil, nil, err
	}

	rec := &models.ValidationRecord{
		TruePositives:  tp,
		FalsePositives: fp,
		TrueNegatives:  tn,
		FalseNegatives: fn,

		TruePositiveRate:  safeRate(tp, tp+fn),
		FalsePositiveRate: safeRate(fp, fp+tn),
		Accuracy:          safeRate(tp+tn, v.totals.TotalPairs),

		ClusterCount: len(clusters),

		AdjustedRandIndex:      AdjustedRandIndex(clusters, v.truth),
		VariationOfInformation: VariationOfInformation(clusters, v.truth),
	}

	rec.OverHorizonIdentities, rec.MedianOverHorizonSecs = v.overHorizonSpans(identityTimes)

	return rec, clusters, nil
}

func checkClosure(tp, fp, tn, fn int64, totals models.PairTotals) error {
	switch {
	case fn < 0:
		return fmt.Errorf("%w: tp %d exceeds valid pairs %d", ErrMatrixClosure, tp, totals.ValidPairs)
	case tn < 0:
		return fmt.Errorf("%w: fp %d exceeds invalid pairs %d", ErrMatrixClosure, fp, totals.TotalPairs-totals.ValidPairs)
	case tp+fn != totals.ValidPairs:
		return fmt.Errorf("%w: tp+fn %d != valid pairs %d", ErrMatrixClosure, tp+fn, totals.ValidPairs)
	case tp+fp+tn+fn != totals.TotalPairs:
		return fmt.Errorf("%w: matrix sum %d != total pairs %d", ErrMatrixClosure, tp+fp+tn+fn, totals.TotalPairs)
	}
	return nil
}

// safeRate guards empty denominators: a class with no members has rate 0,
// not NaN.
func safeRate(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// overHorizonSpans counts identities whose pooled timestamps span longer
// than the horizon and returns the median span among them, in seconds.
// The median is nil when no identity exceeds the horizon: that is "no
// over-merge observed", which zero would misreport.
func (v *Validator) overHorizonSpans(identityTimes map[string][]float64) (int, *float64) {
	horizonSecs := v.horizon.Seconds()

	var spans []float64
	for _, times := range identityTimes {
		if len(times) == 0 {
			continue
		}
		min, max := times[0], times[0]
		for _, ts := range times[1:] {
			if ts < min {
				min = ts
			}
			if ts > max {
				max = ts
			}
		}
		if span := max - min; span > horizonSecs {
			spans = append(spans, span)
		}
	}

	if len(spans) == 0 {
		return 0, nil
	}

	sort.Float64s(spans)
	median := stat.Quantile(0.5, stat.Empirical, spans, nil)
	return len(spans), &median
}

func timestampsOf(probes []models.Probe) []float64 {
	out := make([]float64, len(probes))
	for i, p := range probes {
		out[i] = p.Timestamp
	}
	return out
}
