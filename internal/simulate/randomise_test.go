package simulate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtrace/probelink-engine/pkg/models"
)

func TestRandomiseSplitsAtInterval(t *testing.T) {
	devices := map[string][]models.Probe{
		"aa:aa": {
			{SSID: 5, Timestamp: 0},
			{SSID: 9, Timestamp: 30},
			{SSID: 5, Timestamp: 70}, // 70s from token start, past a 60s interval
			{SSID: 9, Timestamp: 90},
			{SSID: 5, Timestamp: 140}, // 70s from the second token's start
		},
	}

	probes, truth, err := Randomise(devices, time.Minute)
	require.NoError(t, err)

	require.Len(t, probes, 3)
	assert.Len(t, probes[1], 2)
	assert.Len(t, probes[2], 2)
	assert.Len(t, probes[3], 1)

	for token := models.TokenID(1); token <= 3; token++ {
		assert.Equal(t, "aa:aa", truth[token])
	}
}

func TestRandomiseIntervalFromTokenStart(t *testing.T) {
	// Gaps between consecutive probes never exceed the interval, but the
	// distance from the token's first probe does: rotation still happens.
	devices := map[string][]models.Probe{
		"aa:aa": {
			{SSID: 1, Timestamp: 0},
			{SSID: 2, Timestamp: 40},
			{SSID: 3, Timestamp: 80},
		},
	}

	probes, _, err := Randomise(devices, time.Minute)
	require.NoError(t, err)

	require.Len(t, probes, 2)
	assert.Len(t, probes[1], 2)
	assert.Len(t, probes[2], 1)
}

func TestRandomiseLongIntervalKeepsOneToken(t *testing.T) {
	devices := map[string][]models.Probe{
		"aa:aa": {
			{SSID: 1, Timestamp: 0},
			{SSID: 2, Timestamp: 3000},
		},
		"bb:bb": {
			{SSID: 3, Timestamp: 10},
		},
	}

	probes, truth, err := Randomise(devices, 12*time.Hour)
	require.NoError(t, err)

	require.Len(t, probes, 2)
	assert.Equal(t, "aa:aa", truth[1])
	assert.Equal(t, "bb:bb", truth[2])
	assert.Len(t, probes[1], 2)
}

func TestRandomiseDeterministicAcrossDeviceOrder(t *testing.T) {
	devices := map[string][]models.Probe{
		"cc:cc": {{SSID: 1, Timestamp: 0}},
		"aa:aa": {{SSID: 2, Timestamp: 0}},
		"bb:bb": {{SSID: 3, Timestamp: 0}},
	}

	_, truth, err := Randomise(devices, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, models.GroundTruth{1: "aa:aa", 2: "bb:bb", 3: "cc:cc"}, truth)
}

func TestRandomiseRejectsNonPositiveInterval(t *testing.T) {
	_, _, err := Randomise(nil, 0)
	assert.Error(t, err)
}

func TestComputeTotals(t *testing.T) {
	probes := models.TokenProbes{
		1: {{SSID: 5}},
		2: {{SSID: 9}},
		3: {{SSID: 0}, {SSID: 7}}, // qualifies via the directed probe
		4: {{SSID: 0}},            // broadcast only, excluded
	}
	truth := models.GroundTruth{1: "aa", 2: "aa", 3: "bb", 4: "aa"}

	totals := ComputeTotals(probes, truth)

	// Qualifying tokens: 1, 2, 3 → C(3,2)=3 total, one same-device pair.
	assert.Equal(t, models.PairTotals{TotalPairs: 3, ValidPairs: 1, InvalidPairs: 2}, totals)
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(models.TokenProbes{}, models.GroundTruth{})
	assert.Equal(t, models.PairTotals{}, totals)
}
