// Package segments holds the static travel-time table between consecutive
// stops, per traffic tier.
package segments

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"sakay-eta/internal/traffic"
)

// Range is an inclusive travel-time range in minutes.
type Range struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r Range) valid() bool { return r.Min > 0 && r.Min <= r.Max }

// Key identifies a directed segment between two stops.
type Key struct {
	From string
	To   string
}

type Entry struct {
	From   string
	To     string
	Ranges map[traffic.Tier]Range
}

// Rand is the random source used for sampling. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// NewRand returns a seeded source; seed nil means a time-based seed.
func NewRand(seed *int64) *rand.Rand {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	return rand.New(rand.NewSource(s))
}

// DefaultRange is used for every segment the table does not list.
func DefaultRange(tier traffic.Tier) Range {
	switch tier {
	case traffic.Light:
		return Range{Min: 5, Max: 5}
	case traffic.Moderate:
		return Range{Min: 8, Max: 8}
	case traffic.Heavy:
		return Range{Min: 12, Max: 12}
	}
	tier.MustValid()
	return Range{}
}

type Table struct {
	entries map[Key]map[traffic.Tier]Range
}

// NewTable builds a table, rejecting entries with a missing tier, a
// non-positive bound or min > max, and duplicate segments.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{entries: make(map[Key]map[traffic.Tier]Range, len(entries))}
	for _, e := range entries {
		k := Key{From: e.From, To: e.To}
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("segment %q -> %q: stop names must not be empty", e.From, e.To)
		}
		if _, dup := t.entries[k]; dup {
			return nil, fmt.Errorf("segment %q -> %q listed twice", e.From, e.To)
		}
		ranges := make(map[traffic.Tier]Range, len(traffic.Tiers))
		for _, tier := range traffic.Tiers {
			r, ok := e.Ranges[tier]
			if !ok {
				return nil, fmt.Errorf("segment %q -> %q: missing %s range", e.From, e.To, tier)
			}
			if !r.valid() {
				return nil, fmt.Errorf("segment %q -> %q: invalid %s range %d..%d", e.From, e.To, tier, r.Min, r.Max)
			}
			ranges[tier] = r
		}
		t.entries[k] = ranges
	}
	return t, nil
}

// Lookup returns the tabulated range for from -> to, or the tier default.
func (t *Table) Lookup(from, to string, tier traffic.Tier) Range {
	tier.MustValid()
	if t != nil {
		if ranges, ok := t.entries[Key{From: from, To: to}]; ok {
			return ranges[tier]
		}
	}
	return DefaultRange(tier)
}

// Sample draws uniformly from the inclusive range for from -> to.
func (t *Table) Sample(from, to string, tier traffic.Tier, rng Rand) int {
	r := t.Lookup(from, to, tier)
	if r.Max == r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns the table contents ordered by from, then to.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, 0, len(t.entries))
	for k, ranges := range t.entries {
		cp := make(map[traffic.Tier]Range, len(ranges))
		for tier, r := range ranges {
			cp[tier] = r
		}
		out = append(out, Entry{From: k.From, To: k.To, Ranges: cp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
