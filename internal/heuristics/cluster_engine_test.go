package heuristics

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtrace/probelink-engine/pkg/models"
)

func sortedCluster(c models.Cluster) []int {
	out := make([]int, len(c))
	for i, t := range c {
		out[i] = int(t)
	}
	sort.Ints(out)
	return out
}

func collectClusters(t *testing.T, ce *ClusterEngine) [][]int {
	t.Helper()
	var all [][]int
	for {
		cluster, ok := ce.Next()
		if !ok {
			break
		}
		require.NotEmpty(t, cluster)
		all = append(all, sortedCluster(cluster))
	}
	sort.Slice(all, func(i, j int) bool { return all[i][0] < all[j][0] })
	return all
}

func TestClusterSimilarSets(t *testing.T) {
	// Tokens 2 and 4 share a key; token 3 joins through similarity.
	probes := models.TokenProbes{
		1: probesOf(10, 11),
		2: probesOf(1, 2, 3, 4),
		3: probesOf(1, 2, 3, 4, 5),
		4: probesOf(4, 3, 2, 1),
	}
	ix, err := BuildExactSetIndex(probes)
	require.NoError(t, err)

	similar, err := MatchSimilarKeys(context.Background(), ix, 0.5, 2)
	require.NoError(t, err)

	ce := NewClusterEngine(ix, similar)
	clusters := collectClusters(t, ce)

	require.Len(t, clusters, 2)
	assert.Equal(t, []int{1}, clusters[0])
	assert.Equal(t, []int{2, 3, 4}, clusters[1])
	require.NoError(t, ce.Verify())
}

func TestClusterOrderedSequences(t *testing.T) {
	// 1 and 2 share 5,9; 2 and 3 share 9,7; 4 walked the reverse order and
	// stays alone; 5 never qualifies.
	probes := models.TokenProbes{
		1: probesOf(5, 9, 2),
		2: probesOf(5, 9, 7),
		3: probesOf(9, 7, 4),
		4: probesOf(9, 5, 8),
		5: probesOf(6),
	}
	ix, err := BuildOrderedNGramIndex(probes, 2)
	require.NoError(t, err)

	ce := NewClusterEngine(ix, nil)
	clusters := collectClusters(t, ce)

	require.Len(t, clusters, 2)
	assert.Equal(t, []int{1, 2, 3}, clusters[0])
	assert.Equal(t, []int{4}, clusters[1])
	require.NoError(t, ce.Verify())
}

func TestClustersPartitionThePool(t *testing.T) {
	probes := make(models.TokenProbes)
	for i := 0; i < 60; i++ {
		base := uint32(i%9 + 1)
		probes[models.TokenID(i)] = probesOf(base, base+1, uint32(i%4+30))
	}
	ix, err := BuildExactSetIndex(probes)
	require.NoError(t, err)

	similar, err := MatchSimilarKeys(context.Background(), ix, 0.3, 4)
	require.NoError(t, err)

	ce := NewClusterEngine(ix, similar)

	seen := make(map[int]bool)
	total := 0
	for {
		cluster, ok := ce.Next()
		if !ok {
			break
		}
		for _, token := range cluster {
			assert.False(t, seen[int(token)], "token %d emitted twice", token)
			seen[int(token)] = true
		}
		total += len(cluster)
	}

	assert.Equal(t, ix.TokenCount(), total)
	assert.Equal(t, 0, ce.Remaining())
	require.NoError(t, ce.Verify())
}

func TestVerifyFailsOnUnexhaustedPool(t *testing.T) {
	probes := models.TokenProbes{
		1: probesOf(1, 2),
		2: probesOf(3, 4),
	}
	ix, err := BuildExactSetIndex(probes)
	require.NoError(t, err)

	ce := NewClusterEngine(ix, nil)
	_, ok := ce.Next()
	require.True(t, ok)

	err = ce.Verify()
	assert.ErrorIs(t, err, ErrInternalConsistency)
}
