package market

import (
	"fmt"
	"sort"
	"strings"
)

// Marketplace identifies a target platform for which a listing draft is
// generated.
type Marketplace string

const (
	Ebay     Marketplace = "ebay"
	Amazon   Marketplace = "amazon"
	Facebook Marketplace = "facebook"
)

// declaredOrder fixes the canonical ordering of marketplaces. Export output
// is sorted by this order, never by map iteration or insertion order.
var declaredOrder = []Marketplace{Ebay, Amazon, Facebook}

// All returns the known marketplaces in declared order.
func All() []Marketplace {
	out := make([]Marketplace, len(declaredOrder))
	copy(out, declaredOrder)
	return out
}

// Parse converts a string like "ebay" into a Marketplace.
func Parse(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range declaredOrder {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown marketplace: %q", s)
}

// ParseList converts a comma-separated marketplace list, preserving the
// declared order regardless of input order and dropping duplicates.
func ParseList(values []string) ([]Marketplace, error) {
	seen := map[Marketplace]bool{}
	for _, v := range values {
		m, err := Parse(v)
		if err != nil {
			return nil, err
		}
		seen[m] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no marketplaces configured")
	}
	var out []Marketplace
	for _, m := range declaredOrder {
		if seen[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// SortCanonical sorts marketplaces in place by declared order.
func SortCanonical(ms []Marketplace) {
	index := map[Marketplace]int{}
	for i, m := range declaredOrder {
		index[m] = i
	}
	sort.SliceStable(ms, func(i, j int) bool {
		return index[ms[i]] < index[ms[j]]
	})
}
