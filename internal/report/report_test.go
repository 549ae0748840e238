package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtrace/probelink-engine/internal/pipeline"
	"github.com/airtrace/probelink-engine/pkg/models"
)

func recordFixture(median *float64) *models.ValidationRecord {
	return &models.ValidationRecord{
		TruePositives:  3,
		FalsePositives: 1,
		TrueNegatives:  10,
		FalseNegatives: 2,

		TruePositiveRate:  0.6,
		FalsePositiveRate: 1.0 / 11.0,
		Accuracy:          13.0 / 16.0,

		ClusterCount:          4,
		OverHorizonIdentities: 0,
		MedianOverHorizonSecs: median,

		AdjustedRandIndex:      0.5,
		VariationOfInformation: 0.8,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	median := 50000.0
	rows := []Row{
		{Parameter: 0.5, Record: recordFixture(nil)},
		{Parameter: 0.75, Record: recordFixture(&median)},
	}

	require.NoError(t, WriteCSV(&buf, "threshold", rows))

	parsed, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "threshold", parsed[0][0])
	assert.Equal(t, "median_over_horizon_secs", parsed[0][10])

	assert.Equal(t, "0.5", parsed[1][0])
	assert.Equal(t, "3", parsed[1][1])
	// Absent median renders as an empty cell, not zero.
	assert.Equal(t, "", parsed[1][10])
	assert.Equal(t, "50000", parsed[2][10])
}

type sweepDataset struct {
	probes models.TokenProbes
	truth  models.GroundTruth
	totals models.PairTotals
}

func (d *sweepDataset) TokenProbes() (models.TokenProbes, error) { return d.probes, nil }
func (d *sweepDataset) GroundTruth() models.GroundTruth          { return d.truth }
func (d *sweepDataset) PairTotals() models.PairTotals            { return d.totals }

func sweepFixture() *sweepDataset {
	return &sweepDataset{
		probes: models.TokenProbes{
			1: {{SSID: 1, Timestamp: 0}, {SSID: 2, Timestamp: 1}, {SSID: 3, Timestamp: 2}},
			2: {{SSID: 1, Timestamp: 10}, {SSID: 2, Timestamp: 11}, {SSID: 3, Timestamp: 12}, {SSID: 4, Timestamp: 13}},
			3: {{SSID: 8, Timestamp: 0}, {SSID: 9, Timestamp: 1}},
		},
		truth:  models.GroundTruth{1: "aa", 2: "aa", 3: "bb"},
		totals: models.PairTotals{TotalPairs: 3, ValidPairs: 1, InvalidPairs: 2},
	}
}

func TestThresholdSweep(t *testing.T) {
	ds := sweepFixture()

	rows, err := ThresholdSweep(context.Background(), ds, ds, pipeline.Options{Workers: 2}, 0.5, 1.0, 0.25)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 0.5, rows[0].Parameter)
	assert.Equal(t, 0.75, rows[1].Parameter)
	assert.Equal(t, 1.0, rows[2].Parameter)

	// Tokens 1 and 2 have Jaccard 0.75: linked at t=0.5 and t=0.75, not 1.0.
	assert.Equal(t, int64(1), rows[0].Record.TruePositives)
	assert.Equal(t, int64(1), rows[1].Record.TruePositives)
	assert.Equal(t, int64(0), rows[2].Record.TruePositives)
}

func TestThresholdSweepRejectsBadRange(t *testing.T) {
	ds := sweepFixture()
	ctx := context.Background()

	_, err := ThresholdSweep(ctx, ds, ds, pipeline.Options{}, 0.5, 1.0, 0)
	assert.Error(t, err)
	_, err = ThresholdSweep(ctx, ds, ds, pipeline.Options{}, 1.0, 0.5, 0.1)
	assert.Error(t, err)
}

func TestNGramSweep(t *testing.T) {
	ds := sweepFixture()

	rows, err := NGramSweep(context.Background(), ds, ds, pipeline.Options{}, 2, 4)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Tokens 1 and 2 share the prefix walk 1,2,3: linked for n=2 and n=3,
	// but token 1 is too short for n=4.
	assert.Equal(t, int64(1), rows[0].Record.TruePositives)
	assert.Equal(t, int64(1), rows[1].Record.TruePositives)
	assert.Equal(t, int64(0), rows[2].Record.TruePositives)
}

func TestNGramSweepRejectsBadRange(t *testing.T) {
	ds := sweepFixture()
	ctx := context.Background()

	_, err := NGramSweep(ctx, ds, ds, pipeline.Options{}, 1, 4)
	assert.Error(t, err)
	_, err = NGramSweep(ctx, ds, ds, pipeline.Options{}, 4, 2)
	assert.Error(t, err)
}

func TestRenderROC(t *testing.T) {
	var buf bytes.Buffer
	median := 100.0
	rows := []Row{
		{Parameter: 0.9, Record: recordFixture(nil)},
		{Parameter: 0.5, Record: recordFixture(&median)},
	}

	require.NoError(t, RenderROC(&buf, "threshold sweep", rows))
	out := buf.String()
	assert.Contains(t, out, "threshold sweep")
	assert.Contains(t, out, "ROC")
}
