package models

// TokenID identifies one observation session: the stretch of traffic a
// device emitted under a single ephemeral (randomised) identifier.
type TokenID int

// Probe is a single observed probe request.
//
// SSID 0 denotes a broadcast (untargeted) probe; broadcast probes never
// contribute to identity keys. Timestamp is in seconds relative to the
// capture epoch. Fingerprint is an opaque secondary device signal (for
// 802.11 captures, the information-element layout of the frame); it is
// empty when the capture did not record one.
type Probe struct {
	SSID        uint32  `json:"ssid"`
	Timestamp   float64 `json:"timestamp"`
	Fingerprint string  `json:"fingerprint,omitempty"`
}

// TokenProbes maps every token to its ordered probe sequence. The mapping
// is immutable for the duration of a clustering run; all engine components
// consume it read-only.
type TokenProbes map[TokenID][]Probe

// Cluster is a hypothesised group of tokens belonging to one physical
// device. Member order carries no meaning.
type Cluster []TokenID

// GroundTruth maps tokens to the stable device identity that emitted them.
// Used only during validation; never consulted while clustering.
type GroundTruth map[TokenID]string

// PairTotals are the precomputed pair counts over the full token
// population, calculated once by the randomisation simulator. ValidPairs
// counts unordered token pairs sharing a device identity among tokens that
// sent at least one directed (non-broadcast) probe. The validator derives
// its negative classes from these totals.
type PairTotals struct {
	TotalPairs   int64 `json:"total_pairs"`
	ValidPairs   int64 `json:"valid_pairs"`
	InvalidPairs int64 `json:"invalid_pairs"`
}

// ValidationRecord is the pairwise confusion matrix of one clustering run
// against ground truth, plus the temporal-plausibility summary and
// partition-agreement metrics. It is the engine's sole externally visible
// output; reporting treats it as an opaque row.
type ValidationRecord struct {
	TruePositives  int64 `json:"tp"`
	FalsePositives int64 `json:"fp"`
	TrueNegatives  int64 `json:"tn"`
	FalseNegatives int64 `json:"fn"`

	TruePositiveRate  float64 `json:"tpr"`
	FalsePositiveRate float64 `json:"fpr"`
	Accuracy          float64 `json:"accuracy"`

	ClusterCount int `json:"clusters"`

	// Identities whose pooled true-positive timestamps span longer than the
	// over-merge horizon, and the median span among them. The median is nil
	// when no identity exceeds the horizon: "no data", not zero.
	OverHorizonIdentities  int      `json:"over_horizon_identities"`
	MedianOverHorizonSecs  *float64 `json:"median_over_horizon_secs,omitempty"`

	AdjustedRandIndex      float64 `json:"ari"`
	VariationOfInformation float64 `json:"vi"`
}
