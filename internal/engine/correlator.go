package engine

import (
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
	"github.com/nwdaf-lab/hermes/internal/utils"
)

// Correlator evaluates the rule table against a working set of candidates.
type Correlator struct {
	rules *RuleSet
}

// NewCorrelator binds a correlator to a rule table.
func NewCorrelator(rules *RuleSet) *Correlator {
	return &Correlator{rules: rules}
}

// Correlate returns at most one correlation per candidate. When several rules
// fire for the same candidate the highest score wins; ties keep table order.
// Candidates generated before cutoff are ignored. The result is never nil.
func (c *Correlator) Correlate(event *models.AnomalyEvent, candidates []models.AnomalyEvent, cutoff time.Time) []models.Correlation {
	out := make([]models.Correlation, 0)
	eventType := event.Type()
	if eventType == "" {
		return out
	}

	applicable := make([]*Rule, 0, 4)
	for i := range c.rules.rules {
		if c.rules.rules[i].Involves(eventType) {
			applicable = append(applicable, &c.rules.rules[i])
		}
	}
	if len(applicable) == 0 {
		return out
	}

	eventIDs := event.UEIDs()
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ID != "" && candidate.ID == event.ID {
			continue
		}
		if candidate.GeneratedAt().Before(cutoff) {
			continue
		}
		candidateType := candidate.Type()
		if candidateType == "" || candidateType == eventType {
			continue
		}
		if !intersects(eventIDs, candidate.UEIDs()) {
			continue
		}
		delta := utils.AbsDuration(event.GeneratedAt(), candidate.GeneratedAt())

		var best *models.Correlation
		for _, rule := range applicable {
			if !rule.Involves(candidateType) || !rule.TimeOverlapMet(delta) {
				continue
			}
			score := Score(*rule, event, candidate)
			if best == nil || score > best.Score {
				best = &models.Correlation{
					RuleName:          rule.Name,
					CorrelatedEventID: candidate.ID,
					Score:             score,
				}
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	return out
}
