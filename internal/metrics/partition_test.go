package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/airtrace/probelink-engine/pkg/models"
)

var partitionTruth = models.GroundTruth{
	1: "dev-a", 2: "dev-a", 3: "dev-a",
	4: "dev-b", 5: "dev-b",
	6: "dev-c",
}

func TestAdjustedRandIndexPerfect(t *testing.T) {
	clusters := []models.Cluster{{1, 2, 3}, {4, 5}, {6}}
	assert.InDelta(t, 1.0, AdjustedRandIndex(clusters, partitionTruth), 1e-9)
}

func TestAdjustedRandIndexCollapse(t *testing.T) {
	// Everything merged into one cluster: ARI must drop to 0, the
	// chance-level score for a degenerate partition.
	clusters := []models.Cluster{{1, 2, 3, 4, 5, 6}}
	assert.InDelta(t, 0.0, AdjustedRandIndex(clusters, partitionTruth), 1e-9)
}

func TestAdjustedRandIndexPartialAgreement(t *testing.T) {
	clusters := []models.Cluster{{1, 2, 4}, {3, 5}, {6}}
	ari := AdjustedRandIndex(clusters, partitionTruth)
	assert.Greater(t, ari, -1.0)
	assert.Less(t, ari, 1.0)
}

func TestAdjustedRandIndexIgnoresUnknownTokens(t *testing.T) {
	// Token 99 has no ground truth and must not affect the score.
	with := AdjustedRandIndex([]models.Cluster{{1, 2, 3, 99}, {4, 5}, {6}}, partitionTruth)
	without := AdjustedRandIndex([]models.Cluster{{1, 2, 3}, {4, 5}, {6}}, partitionTruth)
	assert.Equal(t, without, with)
}

func TestVariationOfInformationIdentical(t *testing.T) {
	clusters := []models.Cluster{{1, 2, 3}, {4, 5}, {6}}
	assert.InDelta(t, 0.0, VariationOfInformation(clusters, partitionTruth), 1e-9)
}

func TestVariationOfInformationOrdersPartitions(t *testing.T) {
	slightlyOff := []models.Cluster{{1, 2}, {3}, {4, 5}, {6}}
	collapsed := []models.Cluster{{1, 2, 3, 4, 5, 6}}

	viOff := VariationOfInformation(slightlyOff, partitionTruth)
	viCollapsed := VariationOfInformation(collapsed, partitionTruth)

	assert.Greater(t, viOff, 0.0)
	assert.Greater(t, viCollapsed, viOff)
}

func TestPartitionMetricsDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, AdjustedRandIndex(nil, partitionTruth))
	assert.Equal(t, 0.0, VariationOfInformation(nil, partitionTruth))

	single := []models.Cluster{{1}}
	assert.Equal(t, 0.0, AdjustedRandIndex(single, partitionTruth))
	assert.Equal(t, 0.0, VariationOfInformation(single, partitionTruth))
}
