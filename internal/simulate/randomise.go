// Package simulate rebuilds the token view an observer would have seen if
// the captured devices had randomised their link-layer identifiers.
//
// Real captures carry stable MAC addresses, which is exactly the ground
// truth a randomisation scheme hides. The simulator splits each device's
// probe history into tokens at a configurable randomisation interval and
// keeps the token→device mapping aside as ground truth for validation.
package simulate

import (
	"fmt"
	"sort"
	"time"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Randomise splits every device's probe history into tokens. A device
// rotates to a fresh token whenever the gap from the current token's first
// probe exceeds the interval, so token lifetime is measured from the
// token's own start rather than from the previous probe. Token ids are
// assigned in ascending device order, keeping output deterministic for a
// given capture.
func Randomise(devices map[string][]models.Probe, interval time.Duration) (models.TokenProbes, models.GroundTruth, error) {
	if interval <= 0 {
		return nil, nil, fmt.Errorf("randomisation interval must be positive, got %v", interval)
	}
	intervalSecs := interval.Seconds()

	macs := make([]string, 0, len(devices))
	for mac := range devices {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	probes := make(models.TokenProbes)
	truth := make(models.GroundTruth)
	next := models.TokenID(1)

	for _, mac := range macs {
		history := devices[mac]
		if len(history) == 0 {
			continue
		}

		token := next
		next++
		truth[token] = mac
		start := history[0].Timestamp

		for _, p := range history {
			if p.Timestamp-start > intervalSecs {
				token = next
				next++
				truth[token] = mac
				start = p.Timestamp
			}
			probes[token] = append(probes[token], p)
		}
	}

	return probes, truth, nil
}

// ComputeTotals counts the unordered token pairs the validator scores
// against. Only tokens that sent at least one directed probe qualify;
// broadcast-only tokens can never be clustered and are excluded from the
// population. Valid pairs are the same-device pairs among qualifiers.
func ComputeTotals(probes models.TokenProbes, truth models.GroundTruth) models.PairTotals {
	perDevice := make(map[string]int64)
	var qualifying int64

	for token, tokenProbes := range probes {
		directed := false
		for _, p := range tokenProbes {
			if p.SSID != 0 {
				directed = true
				break
			}
		}
		if !directed {
			continue
		}
		qualifying++
		if mac, ok := truth[token]; ok {
			perDevice[mac]++
		}
	}

	totals := models.PairTotals{TotalPairs: pairs(qualifying)}
	for _, n := range perDevice {
		totals.ValidPairs += pairs(n)
	}
	totals.InvalidPairs = totals.TotalPairs - totals.ValidPairs
	return totals
}

func pairs(n int64) int64 {
	return n * (n - 1) / 2
}
