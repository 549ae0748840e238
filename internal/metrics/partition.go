package metrics

import (
	"math"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Partition-agreement metrics between the produced clustering and ground
// truth, complementing the pairwise confusion matrix: ARI exposes cluster
// collapse that pair counts hide, VI measures the information distance
// between the two partitions. Both are computed over clustered tokens only;
// tokens the engine discarded do not enter the comparison.

// contingency cross-tabulates cluster membership against device identity:
// cells[c][id] counts the tokens of cluster c that ground truth assigns to
// identity id. Tokens without a ground-truth entry are skipped.
type contingency struct {
	cells    map[int]map[string]int
	clusters map[int]int
	identity map[string]int
	total    int
}

func crossTabulate(clusters []models.Cluster, truth models.GroundTruth) *contingency {
	ct := &contingency{
		cells:    make(map[int]map[string]int),
		clusters: make(map[int]int),
		identity: make(map[string]int),
	}
	for c, cluster := range clusters {
		for _, token := range cluster {
			id, ok := truth[token]
			if !ok {
				continue
			}
			if ct.cells[c] == nil {
				ct.cells[c] = make(map[string]int)
			}
			ct.cells[c][id]++
			ct.clusters[c]++
			ct.identity[id]++
			ct.total++
		}
	}
	return ct
}

// AdjustedRandIndex scores partition agreement, chance-corrected.
// 1 means the clustering reproduces the identity partition exactly,
// 0 is chance level, negative is worse than chance.
func AdjustedRandIndex(clusters []models.Cluster, truth models.GroundTruth) float64 {
	ct := crossTabulate(clusters, truth)
	if ct.total < 2 {
		return 0
	}

	var sumCells, sumRows, sumCols float64
	for _, row := range ct.cells {
		for _, n := range row {
			sumCells += pairsOf(n)
		}
	}
	for _, n := range ct.clusters {
		sumRows += pairsOf(n)
	}
	for _, n := range ct.identity {
		sumCols += pairsOf(n)
	}

	expected := sumRows * sumCols / pairsOf(ct.total)
	max := (sumRows + sumCols) / 2

	if math.Abs(max-expected) < 1e-12 {
		// Both partitions are all-singletons (or one giant block each);
		// agreement is exact.
		return 1
	}
	return (sumCells - expected) / (max - expected)
}

// VariationOfInformation is the information distance between the clustering
// and the identity partition: H(C|T) + H(T|C), in bits. 0 means identical
// partitions; lower is better.
func VariationOfInformation(clusters []models.Cluster, truth models.GroundTruth) float64 {
	ct := crossTabulate(clusters, truth)
	if ct.total < 2 {
		return 0
	}
	n := float64(ct.total)

	var vi float64
	for c, row := range ct.cells {
		for id, nij := range row {
			if nij == 0 {
				continue
			}
			p := float64(nij) / n
			vi -= p * math.Log2(float64(nij)/float64(ct.identity[id]))
			vi -= p * math.Log2(float64(nij)/float64(ct.clusters[c]))
		}
	}
	return vi
}

func pairsOf(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2
}
