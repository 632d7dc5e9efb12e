package engine

import (
	"math"
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
	"github.com/nwdaf-lab/hermes/internal/utils"
)

// Score weights.
const (
	weightUEMatch          = 0.3
	weightTimeProximity    = 0.4
	weightLocation         = 0.3
	weightAdditionalMetric = 0.1

	signalSpan = 20.0
	levelSpan  = 5.0
)

// Score computes the composite correlation score of two events under rule.
// The result lies in [0, 1] and does not depend on argument order.
func Score(rule Rule, a, b *models.AnomalyEvent) float64 {
	ba, _ := a.Behavior()
	bb, _ := b.Behavior()

	score := 0.0
	if intersects(a.UEIDs(), b.UEIDs()) {
		score += weightUEMatch
	}

	delta := utils.AbsDuration(a.GeneratedAt(), b.GeneratedAt())
	score += weightTimeProximity * timeProximity(delta, rule.TimeThreshold())

	for _, c := range rule.Conditions {
		switch c.Kind {
		case ConditionLocation:
			score += weightLocation * locationProximity(ba, bb, c.ThresholdKm)
		case ConditionAdditionalMetric:
			score += weightAdditionalMetric * metricSimilarity(c.Metric, ba, bb)
		case ConditionUEIDs, ConditionTime, ConditionTimeInterval:
		}
	}
	return clamp01(score)
}

func timeProximity(delta, threshold time.Duration) float64 {
	if threshold <= 0 || delta > threshold {
		return 0
	}
	return 1 - float64(delta)/float64(threshold)
}

// locationProximity is zero unless both behaviours carry coordinates.
func locationProximity(a, b models.AbnormalBehavior, thresholdKm float64) float64 {
	la, okA := a.Location()
	lb, okB := b.Location()
	if !okA || !okB || thresholdKm <= 0 {
		return 0
	}
	return clamp01(1 - distanceKm(la, lb)/thresholdKm)
}

func metricSimilarity(metric string, a, b models.AbnormalBehavior) float64 {
	switch metric {
	case MetricSignalQuality:
		pa, okA := a.NetworkPerformance()
		pb, okB := b.NetworkPerformance()
		if !okA || !okB {
			return 0
		}
		rsrp := math.Abs(pa.SignalQuality.RSRPValue() - pb.SignalQuality.RSRPValue())
		sinr := math.Abs(pa.SignalQuality.SINRValue() - pb.SignalQuality.SINRValue())
		return clamp01(0.5*math.Max(0, 1-rsrp/signalSpan) + 0.5*math.Max(0, 1-sinr/signalSpan))
	case MetricConfidence:
		return clamp01(math.Min(a.Confidence, b.Confidence) / 100)
	case MetricExceptionLevel:
		diff := math.Abs(float64(a.Excep.ExcepLevel - b.Excep.ExcepLevel))
		return clamp01(1 - diff/levelSpan)
	case MetricRatio:
		return clamp01(1 - math.Abs(a.Ratio-b.Ratio))
	default:
		return 0
	}
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for id := range a {
		if _, ok := b[id]; ok {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
