package heuristics

import "github.com/airtrace/probelink-engine/pkg/models"

// Fingerprint Outlier Filter
//
// A secondary, weaker device signal used to prune over-merged clusters.
// A token has a stable fingerprint when every fingerprinted probe it sent
// carries the same value; such tokens are held to a majority vote across
// the cluster's stable tokens. Tokens with mixed or absent fingerprints
// carry no usable signal and are never removed, so the filter can only
// shrink a cluster, never grow it.

// FilterFingerprintOutliers returns the cluster with stable-fingerprint
// minority tokens removed. A cluster with no stable tokens is returned
// unchanged. Ties go to the fingerprint first encountered in cluster
// member order, keeping the result deterministic for a given input.
func FilterFingerprintOutliers(probes models.TokenProbes, cluster models.Cluster) models.Cluster {
	stable := make(map[models.TokenID]string)
	counts := make(map[string]int)
	var order []string

	for _, token := range cluster {
		fp, ok := stableFingerprint(probes[token])
		if !ok {
			continue
		}
		stable[token] = fp
		if counts[fp] == 0 {
			order = append(order, fp)
		}
		counts[fp]++
	}

	if len(counts) == 0 {
		return cluster
	}

	majority := order[0]
	for _, fp := range order[1:] {
		if counts[fp] > counts[majority] {
			majority = fp
		}
	}

	filtered := make(models.Cluster, 0, len(cluster))
	for _, token := range cluster {
		if fp, ok := stable[token]; ok && fp != majority {
			continue
		}
		filtered = append(filtered, token)
	}
	return filtered
}

// stableFingerprint reports the token's single fingerprint value, or
// ok=false when the token has none or more than one distinct value.
func stableFingerprint(probes []models.Probe) (string, bool) {
	var fp string
	seen := false
	for _, p := range probes {
		if p.Fingerprint == "" {
			continue
		}
		if !seen {
			fp = p.Fingerprint
			seen = true
			continue
		}
		if p.Fingerprint != fp {
			return "", false
		}
	}
	return fp, seen
}
