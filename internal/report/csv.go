// Package report renders sweep results: a CSV row per run plus an ROC
// curve over the sweep's operating points.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Row is one sweep operating point: the varied parameter and the run's
// validation record.
type Row struct {
	Parameter float64
	Record    *models.ValidationRecord
}

// csvHeader's parameter column is named by the sweep (threshold or n).
var csvColumns = []string{
	"tp", "fp", "tn", "fn",
	"tpr", "fpr", "accuracy",
	"clusters", "over_horizon_macs", "median_over_horizon_secs",
	"ari", "vi",
}

// WriteCSV writes one line per sweep row. An absent median renders as an
// empty cell, keeping "no over-merge observed" distinct from a zero span.
func WriteCSV(w io.Writer, parameter string, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(append([]string{parameter}, csvColumns...)); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	for _, row := range rows {
		rec := row.Record
		median := ""
		if rec.MedianOverHorizonSecs != nil {
			median = formatFloat(*rec.MedianOverHorizonSecs)
		}
		err := cw.Write([]string{
			formatFloat(row.Parameter),
			strconv.FormatInt(rec.TruePositives, 10),
			strconv.FormatInt(rec.FalsePositives, 10),
			strconv.FormatInt(rec.TrueNegatives, 10),
			strconv.FormatInt(rec.FalseNegatives, 10),
			formatFloat(rec.TruePositiveRate),
			formatFloat(rec.FalsePositiveRate),
			formatFloat(rec.Accuracy),
			strconv.Itoa(rec.ClusterCount),
			strconv.Itoa(rec.OverHorizonIdentities),
			median,
			formatFloat(rec.AdjustedRandIndex),
			formatFloat(rec.VariationOfInformation),
		})
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
