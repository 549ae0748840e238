package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/airtrace/probelink-engine/pkg/models"
)

func fingerprinted(fp string, ssids ...uint32) []models.Probe {
	out := probesOf(ssids...)
	for i := range out {
		out[i].Fingerprint = fp
	}
	return out
}

func TestFilterFingerprintOutliers(t *testing.T) {
	probes := models.TokenProbes{
		2: fingerprinted("0,1,50", 5, 9),
		3: fingerprinted("0,1,50", 5, 9),
		5: fingerprinted("0,1,45", 5, 9),
	}

	got := FilterFingerprintOutliers(probes, models.Cluster{2, 3, 5})
	assert.Equal(t, models.Cluster{2, 3}, got)
}

func TestFilterKeepsUnstableAndAbsent(t *testing.T) {
	unstable := fingerprinted("0,1,50", 5, 9)
	unstable = append(unstable, models.Probe{SSID: 9, Timestamp: 3, Fingerprint: "0,1,45"})

	probes := models.TokenProbes{
		1: fingerprinted("0,1,50", 5, 9),
		2: fingerprinted("0,1,50", 5, 9),
		3: unstable,           // mixed fingerprints carry no signal
		4: probesOf(5, 9),     // no fingerprint at all
		5: fingerprinted("0,1,45", 5, 9),
	}

	got := FilterFingerprintOutliers(probes, models.Cluster{1, 2, 3, 4, 5})
	assert.Equal(t, models.Cluster{1, 2, 3, 4}, got)
}

func TestFilterNoStableFingerprintsUnchanged(t *testing.T) {
	mixed := fingerprinted("a", 5, 9)
	mixed = append(mixed, models.Probe{SSID: 9, Timestamp: 3, Fingerprint: "b"})

	probes := models.TokenProbes{
		1: probesOf(5, 9),
		2: mixed,
	}

	cluster := models.Cluster{1, 2}
	got := FilterFingerprintOutliers(probes, cluster)
	assert.Equal(t, cluster, got)
}

func TestFilterNeverGrowsCluster(t *testing.T) {
	probes := models.TokenProbes{
		1: fingerprinted("x", 5, 9),
		2: fingerprinted("y", 5, 9),
		3: fingerprinted("x", 5, 9),
		9: fingerprinted("x", 5, 9), // outside the cluster, must stay outside
	}

	got := FilterFingerprintOutliers(probes, models.Cluster{1, 2, 3})
	assert.Equal(t, models.Cluster{1, 3}, got)
}

func TestFilterTieGoesToFirstEncountered(t *testing.T) {
	probes := models.TokenProbes{
		1: fingerprinted("x", 5, 9),
		2: fingerprinted("y", 5, 9),
	}

	got := FilterFingerprintOutliers(probes, models.Cluster{1, 2})
	assert.Equal(t, models.Cluster{1}, got)

	got = FilterFingerprintOutliers(probes, models.Cluster{2, 1})
	assert.Equal(t, models.Cluster{2}, got)
}
