package heuristics

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// SimilarityIndex is the symmetric adjacency between identity keys whose
// Jaccard index met the threshold. Both directions are always present.
type SimilarityIndex map[KeyID]map[KeyID]struct{}

func (si SimilarityIndex) link(a, b KeyID) {
	if _, ok := si[a]; !ok {
		si[a] = make(map[KeyID]struct{})
	}
	if _, ok := si[b]; !ok {
		si[b] = make(map[KeyID]struct{})
	}
	si[a][b] = struct{}{}
	si[b][a] = struct{}{}
}

// Similar reports the keys linked to k. Nil when k has no links.
func (si SimilarityIndex) Similar(k KeyID) map[KeyID]struct{} {
	return si[k]
}

type keyPair struct {
	a, b KeyID
}

// MatchSimilarKeys compares every unordered pair of distinct identity keys
// in the index and links those whose SSID sets have a Jaccard index of at
// least threshold. The comparison is set-based regardless of how the keys
// were built. Pair generation is split across workers; a single consumer
// merges matches, so the result does not depend on worker count or
// completion order. The first worker error cancels the remaining work.
func MatchSimilarKeys(ctx context.Context, ix *KeyIndex, threshold float64, workers int) (SimilarityIndex, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0,1], got %v", threshold)
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	keys := ix.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	similar := make(SimilarityIndex)
	if len(keys) < 2 {
		return similar, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	results := make(chan []keyPair, workers)

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var matched []keyPair
			for i := w; i < len(keys); i += workers {
				members := ix.Members(keys[i])
				for j := i + 1; j < len(keys); j++ {
					if jaccardIndex(members, ix.Members(keys[j])) >= threshold {
						matched = append(matched, keyPair{keys[i], keys[j]})
					}
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			if len(matched) > 0 {
				select {
				case results <- matched:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	for batch := range results {
		for _, p := range batch {
			similar.link(p.a, p.b)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("similarity matching: %w", err)
	}

	return similar, nil
}

// jaccardIndex computes |a∩b| / |a∪b| over two SSID lists. Set keys store
// their members sorted, which the two-pointer intersection relies on;
// n-gram members are copied and sorted first.
func jaccardIndex(a, b []uint32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	a = sortedSet(a)
	b = sortedSet(b)

	var intersection int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			intersection++
			i++
			j++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// sortedSet returns members sorted and de-duplicated, reusing the input
// slice when it is already in that form.
func sortedSet(members []uint32) []uint32 {
	sorted := true
	for i := 1; i < len(members); i++ {
		if members[i] <= members[i-1] {
			sorted = false
			break
		}
	}
	if sorted {
		return members
	}

	out := make([]uint32, len(members))
	copy(out, members)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
