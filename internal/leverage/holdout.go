package leverage

import (
	"tmcore/internal/nstring"
	"tmcore/internal/tmstore"
)

// HoldInternalLeverage groups tus by flattened source and, for each group with
// more than one member, picks translators greedily until every member is
// covered. A translator covers a member when expected minus the penalty
// between them reaches the member's minimum quality; it always covers itself.
//
// Each step picks the uncovered member covering the most uncovered members,
// earliest first on ties. This approximates a minimum dominating set and is
// not guaranteed optimal.
//
// The returned holdouts are the covered non-translators, marked in-flight with
// their translator as parent, quality expected minus penalty and ts 0.
// Pluralized TUs never take part.
func HoldInternalLeverage(tus []tmstore.TU, penalties Penalties, expected int) []tmstore.TU {
	groups := make(map[string][]int)
	var keys []string
	for i, tu := range tus {
		if tu.PluralForm != "" {
			continue
		}
		key := nstring.Flatten(tu.NSrc)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}

	var holdouts []tmstore.TU
	for _, key := range keys {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		holdouts = append(holdouts, coverGroup(tus, members, penalties, expected)...)
	}
	return holdouts
}

func coverGroup(tus []tmstore.TU, members []int, penalties Penalties, expected int) []tmstore.TU {
	covers := func(a, b int) bool {
		return a == b || expected-penalties.Between(tus[a], tus[b]) >= tus[b].MinQ
	}
	uncovered := make(map[int]bool, len(members))
	for _, m := range members {
		uncovered[m] = true
	}

	var holdouts []tmstore.TU
	for len(uncovered) > 0 {
		pick, pickCount := -1, 0
		for _, cand := range members {
			if !uncovered[cand] {
				continue
			}
			count := 0
			for _, m := range members {
				if uncovered[m] && covers(cand, m) {
					count++
				}
			}
			if count > pickCount {
				pick, pickCount = cand, count
			}
		}
		delete(uncovered, pick)
		for _, m := range members {
			if !uncovered[m] || !covers(pick, m) {
				continue
			}
			delete(uncovered, m)
			held := tus[m]
			held.ParentGUID = tus[pick].GUID
			held.InFlight = true
			held.NTgt = nil
			held.Q = expected - penalties.Between(tus[pick], tus[m])
			held.TS = 0
			holdouts = append(holdouts, held)
		}
	}
	return holdouts
}
