package heuristics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// Identity Key Builder
//
// A device that randomises its link-layer identifier still leaks identity
// through the network names it probes for. Each token (one randomisation
// session) is reduced to one or more identity keys:
//
//   - exact-set: the unordered set of distinct directed SSIDs the token
//     probed for across its lifetime. Sets with fewer than two members are
//     discarded: single-SSID matches produce a very high false-positive
//     rate.
//   - ordered-ngram: every window of n consecutive, non-repeating SSIDs
//     from the token's de-duplicated probe sequence. Order is part of the
//     key, so two tokens match only if they walked the same SSID sequence.
//
// Broadcast probes (SSID 0) carry no name and are always excluded.

// Mode selects how identity keys are derived from a token's probes.
type Mode string

const (
	ModeExactSet     Mode = "exact-set"
	ModeOrderedNGram Mode = "ordered-ngram"
)

// Sets with fewer distinct SSIDs than this are discarded: one shared
// network name links far too many unrelated devices.
const minSetCardinality = 2

// ErrMalformedProbe reports a probe record that violates the input
// contract. This is an upstream collaborator bug, fatal for the run.
var ErrMalformedProbe = errors.New("malformed probe record")

// KeyID is the canonical, value-comparable form of an identity key.
// Set keys encode their members sorted; n-gram keys preserve window order.
// Two keys are equal iff their KeyIDs are equal.
type KeyID string

func setKeyID(ssids []uint32) KeyID {
	return KeyID("s|" + joinSSIDs(ssids))
}

func ngramKeyID(window []uint32) KeyID {
	return KeyID("t|" + joinSSIDs(window))
}

func joinSSIDs(ssids []uint32) string {
	var b strings.Builder
	for i, s := range ssids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(s), 10))
	}
	return b.String()
}

// KeyIndex is the bidirectional token↔key mapping produced by the builder.
// Invariant: a token appears under a key in KeyTokens iff that key appears
// in the token's TokenKeys entry. Both maps are populated through add(),
// which keeps them consistent by construction.
type KeyIndex struct {
	KeyTokens map[KeyID]map[models.TokenID]struct{}
	TokenKeys map[models.TokenID]map[KeyID]struct{}

	// members holds each key's SSIDs: sorted ascending for set keys,
	// window order for n-gram keys. Jaccard computation reads these.
	members map[KeyID][]uint32
}

func newKeyIndex() *KeyIndex {
	return &KeyIndex{
		KeyTokens: make(map[KeyID]map[models.TokenID]struct{}),
		TokenKeys: make(map[models.TokenID]map[KeyID]struct{}),
		members:   make(map[KeyID][]uint32),
	}
}

func (ix *KeyIndex) add(token models.TokenID, key KeyID, members []uint32) {
	if _, ok := ix.KeyTokens[key]; !ok {
		ix.KeyTokens[key] = make(map[models.TokenID]struct{})
		ix.members[key] = members
	}
	ix.KeyTokens[key][token] = struct{}{}

	if _, ok := ix.TokenKeys[token]; !ok {
		ix.TokenKeys[token] = make(map[KeyID]struct{})
	}
	ix.TokenKeys[token][key] = struct{}{}
}

// Members returns the SSIDs behind a key. The slice must not be mutated.
func (ix *KeyIndex) Members(key KeyID) []uint32 {
	return ix.members[key]
}

// Keys returns every distinct identity key in the index.
func (ix *KeyIndex) Keys() []KeyID {
	keys := make([]KeyID, 0, len(ix.KeyTokens))
	for k := range ix.KeyTokens {
		keys = append(keys, k)
	}
	return keys
}

// TokenCount returns the number of tokens holding at least one key.
func (ix *KeyIndex) TokenCount() int {
	return len(ix.TokenKeys)
}

func validateProbe(token models.TokenID, p models.Probe) error {
	if math.IsNaN(p.Timestamp) || math.IsInf(p.Timestamp, 0) || p.Timestamp < 0 {
		return fmt.Errorf("%w: token %d has timestamp %v", ErrMalformedProbe, token, p.Timestamp)
	}
	return nil
}

// BuildExactSetIndex collapses every token's probes to its set of distinct
// directed SSIDs and indexes tokens under the resulting set key. Tokens
// whose set has fewer than two members receive no key and are never
// clustered. Each token maps to at most one key in this mode.
func BuildExactSetIndex(probes models.TokenProbes) (*KeyIndex, error) {
	ix := newKeyIndex()

	for token, tokenProbes := range probes {
		seen := make(map[uint32]struct{})
		for _, p := range tokenProbes {
			if err := validateProbe(token, p); err != nil {
				return nil, err
			}
			if p.SSID == 0 {
				// Broadcast probe, no network name to key on.
				continue
			}
			seen[p.SSID] = struct{}{}
		}

		if len(seen) < minSetCardinality {
			continue
		}

		ssids := make([]uint32, 0, len(seen))
		for s := range seen {
			ssids = append(ssids, s)
		}
		sort.Slice(ssids, func(i, j int) bool { return ssids[i] < ssids[j] })

		ix.add(token, setKeyID(ssids), ssids)
	}

	return ix, nil
}

// BuildOrderedNGramIndex indexes every token under each window of n
// consecutive SSIDs from its de-duplicated probe sequence (broadcast
// probes dropped, consecutive repeats collapsed). Tokens whose sequence is
// shorter than n receive no keys; longer tokens contribute one key per
// overlapping window, up to len−n+1 of them.
func BuildOrderedNGramIndex(probes models.TokenProbes, n int) (*KeyIndex, error) {
	if n < 2 {
		return nil, fmt.Errorf("ngram window size must be >= 2, got %d", n)
	}

	ix := newKeyIndex()

	for token, tokenProbes := range probes {
		var seq []uint32
		for _, p := range tokenProbes {
			if err := validateProbe(token, p); err != nil {
				return nil, err
			}
			if p.SSID == 0 || (len(seq) > 0 && seq[len(seq)-1] == p.SSID) {
				continue
			}
			seq = append(seq, p.SSID)
		}

		if len(seq) < n {
			continue
		}

		for i := 0; i+n <= len(seq); i++ {
			window := make([]uint32, n)
			copy(window, seq[i:i+n])
			ix.add(token, ngramKeyID(window), window)
		}
	}

	return ix, nil
}
