package lockset

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/kvlock/lockset/collections"
	genericiter "github.com/kvlock/lockset/iter"
	"github.com/kvlock/lockset/storage"
)

// Set is the ordered sequence of Entry decoded from (or destined for) the
// payload stored at a single key. Absent key and empty Set are the same
// thing; the engine never writes the literal "[]" wire value — an empty
// Set is written by deleting the key instead.
type Set []Entry

// DecodeSet parses v's payload into a Set. An absent Value decodes to a
// nil Set. Non-array payloads, malformed JSON, and non-object array
// elements all decode to an empty/partial Set rather than erroring —
// malformed stored payloads are never surfaced to callers, only logged by
// whoever calls DecodeSet with access to a logger. malformed reports
// whether the payload was present but could not be parsed as a JSON
// array, so the caller can decide whether that's worth a log line.
func DecodeSet(v storage.Value) (entries Set, malformed bool) {
	if !v.Present() {
		return nil, false
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(v.Payload()), &raw); err != nil {
		return nil, true
	}

	entries = make(Set, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, false
}

// Encode renders s as the JSON array payload to write verbatim as the new
// CAS value. Never called on an empty Set by the engine (empty transitions
// to DeleteIf instead), but returns "[]" if it is.
func (s Set) Encode() string {
	if s == nil {
		s = Set{}
	}
	b, err := json.Marshal([]Entry(s))
	if err != nil {
		// Entry marshals unconditionally (string/int64/bool fields only).
		panic(err)
	}
	return string(b)
}

// purgeExpired returns a new Set with every expired entry removed,
// preserving relative order.
func (s Set) purgeExpired(now time.Time) Set {
	notExpired := func(e Entry) bool { return !e.expired(now) }
	kept := make(Set, 0, len(s))
	for e := range genericiter.Filter(notExpired, slices.Values(s)) {
		kept = append(kept, e)
	}
	return kept
}

// indexOf returns the index of the entry held by identifier, or -1.
func (s Set) indexOf(identifier string) int {
	return slices.IndexFunc(s, func(e Entry) bool { return e.By == identifier })
}

// HolderIDs returns the distinct identifiers holding a non-expired entry as
// of now. Useful for diagnostics: "who is contending for this key right
// now".
func (s Set) HolderIDs(now time.Time) collections.Set[string] {
	ids := collections.NewSet[string]()
	for _, e := range s {
		if !e.expired(now) {
			ids.Add(e.By)
		}
	}
	return ids
}
