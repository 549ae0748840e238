package heuristics

import (
	"errors"
	"fmt"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Token Clustering Engine (flood-fill)
//
// The CORE of the de-anonymization pipeline. Groups randomised tokens into
// device clusters by walking the implicit token graph:
//   "Two tokens are adjacent when they share an identity key, or hold
//    identity keys linked by the similarity index."
//
// Implementation: iterative flood-fill over a shrinking token pool.
//   - Each Next() call seeds from an arbitrary pooled token and exhausts
//     its connected component before returning it.
//   - Visited tokens leave the pool permanently, so components are emitted
//     exactly once and traversal cost is bounded by the edge count.
//
// Only tokens that earned at least one identity key enter the pool; tokens
// below the key builder's cardinality/length floor are never clustered.

// ErrInternalConsistency reports a violated algorithmic invariant. The run
// must abort; any emitted clusters are untrustworthy.
var ErrInternalConsistency = errors.New("internal consistency violation")

// ClusterEngine emits device clusters one at a time via Next(). It is
// single-use: after exhaustion, Verify() checks that the emitted clusters
// partition the starting pool exactly.
type ClusterEngine struct {
	ix      *KeyIndex
	similar SimilarityIndex

	pool map[models.TokenID]struct{}

	seeded  int
	emitted int
}

// NewClusterEngine prepares a traversal over every keyed token in ix.
// A nil similarity index means adjacency is shared keys only, which is how
// ordered-ngram runs operate.
func NewClusterEngine(ix *KeyIndex, similar SimilarityIndex) *ClusterEngine {
	pool := make(map[models.TokenID]struct{}, len(ix.TokenKeys))
	for token := range ix.TokenKeys {
		pool[token] = struct{}{}
	}
	return &ClusterEngine{
		ix:      ix,
		similar: similar,
		pool:    pool,
		seeded:  len(pool),
	}
}

// Next emits the next device cluster, or ok=false once the pool is empty.
// Membership does not depend on which pooled token happens to seed the
// component: flood-fill from any member reaches the same component.
func (ce *ClusterEngine) Next() (models.Cluster, bool) {
	var seed models.TokenID
	found := false
	for token := range ce.pool {
		seed = token
		found = true
		break
	}
	if !found {
		return nil, false
	}

	var cluster models.Cluster
	frontier := map[models.TokenID]struct{}{seed: {}}
	delete(ce.pool, seed)

	for len(frontier) > 0 {
		var current models.TokenID
		for token := range frontier {
			current = token
			break
		}
		delete(frontier, current)
		cluster = append(cluster, current)

		for neighbor := range ce.neighbors(current) {
			if _, pooled := ce.pool[neighbor]; !pooled {
				continue
			}
			delete(ce.pool, neighbor)
			frontier[neighbor] = struct{}{}
		}
	}

	ce.emitted += len(cluster)
	return cluster, true
}

// neighbors collects every token reachable from t in one hop: holders of
// t's own keys plus holders of keys similarity-linked to them.
func (ce *ClusterEngine) neighbors(t models.TokenID) map[models.TokenID]struct{} {
	out := make(map[models.TokenID]struct{})

	for key := range ce.ix.TokenKeys[t] {
		for holder := range ce.ix.KeyTokens[key] {
			out[holder] = struct{}{}
		}
		for linked := range ce.similar.Similar(key) {
			for holder := range ce.ix.KeyTokens[linked] {
				out[holder] = struct{}{}
			}
		}
	}

	delete(out, t)
	return out
}

// Verify checks the partition invariant after exhaustion: every pooled
// token was emitted exactly once and none remain.
func (ce *ClusterEngine) Verify() error {
	if len(ce.pool) != 0 {
		return fmt.Errorf("%w: %d tokens never emitted from pool of %d",
			ErrInternalConsistency, len(ce.pool), ce.seeded)
	}
	if ce.emitted != ce.seeded {
		return fmt.Errorf("%w: emitted %d tokens from pool of %d",
			ErrInternalConsistency, ce.emitted, ce.seeded)
	}
	return nil
}

// Remaining returns the number of tokens not yet emitted.
func (ce *ClusterEngine) Remaining() int {
	return len(ce.pool)
}
