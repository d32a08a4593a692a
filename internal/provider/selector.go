package provider

import "sort"

// Selector ranks providers for a requested data type.
//
// The scoring formula weighs reliability highest, then cost, then latency:
//
//	score = reliability*0.5 + (1/cost)*0.3 + (1/avgLatencyMs)*0.2
//
// Ties are broken by registration order (first registered wins). The formula
// is intentionally simple and fully documented so its ranking is reproducible
// in tests; changing the weights changes failover behavior.
type Selector struct {
	registry *Registry
}

func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// FindSuitable returns all providers able to serve the given data type, in
// registration order. The data type matches a provider capability by
// category, by sub-type, or by the compound "category-subtype" key.
func (s *Selector) FindSuitable(dataType string) []Provider {
	var result []Provider
	for _, p := range s.registry.All() {
		if supports(p, dataType) {
			result = append(result, p)
		}
	}
	return result
}

// SelectBest returns the highest-scoring provider, or false when the slice is
// empty. The input order is the registration order, so a strict greater-than
// comparison implements the first-registered tie-break.
func (s *Selector) SelectBest(providers []Provider) (Provider, bool) {
	if len(providers) == 0 {
		return Provider{}, false
	}
	best := providers[0]
	bestScore := Score(best)
	for _, p := range providers[1:] {
		if sc := Score(p); sc > bestScore {
			best = p
			bestScore = sc
		}
	}
	return best, true
}

// Rank returns suitable providers sorted by descending score, registration
// order preserved among equal scores. Used by the aggregator to walk backups.
func (s *Selector) Rank(dataType string) []Provider {
	suitable := s.FindSuitable(dataType)
	sort.SliceStable(suitable, func(i, j int) bool {
		return Score(suitable[i]) > Score(suitable[j])
	})
	return suitable
}

// Score computes the selection score for a provider.
func Score(p Provider) float64 {
	score := p.Reliability * 0.5
	if p.CostPerCall > 0 {
		score += (1 / p.CostPerCall) * 0.3
	}
	if ms := float64(p.AvgLatency.Milliseconds()); ms > 0 {
		score += (1 / ms) * 0.2
	}
	return score
}

func supports(p Provider, dataType string) bool {
	for _, c := range p.SupportedDataTypes {
		if c.Category == dataType || c.SubType == dataType || c.Key() == dataType {
			return true
		}
	}
	return false
}
