package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nwdaf-lab/hermes/internal/models"
)

//go:embed rules/default.yaml
var defaultRules []byte

// ConditionKind names a rule condition type.
type ConditionKind string

const (
	ConditionUEIDs            ConditionKind = "ue_ids"
	ConditionTime             ConditionKind = "time"
	ConditionLocation         ConditionKind = "location"
	ConditionTimeInterval     ConditionKind = "time_interval"
	ConditionAdditionalMetric ConditionKind = "additional_metric"
)

// Secondary metrics understood by additional_metric conditions.
const (
	MetricSignalQuality  = "signal_quality"
	MetricConfidence     = "confidence"
	MetricExceptionLevel = "exception_level"
	MetricRatio          = "ratio"
)

const matchOverlap = "overlap"

// defaultTimeThreshold applies when a rule carries no time condition.
const defaultTimeThreshold = 60 * time.Minute

// Condition is one clause of a correlation rule.
type Condition struct {
	Kind             ConditionKind `yaml:"type"`
	Match            string        `yaml:"match"`
	ThresholdMinutes float64       `yaml:"threshold_minutes"`
	ThresholdKm      float64       `yaml:"threshold_km"`
	Metric           string        `yaml:"metric"`
}

// Rule links an unordered pair of distinct anomaly types.
type Rule struct {
	Name       string               `yaml:"name"`
	Anomalies  []models.AnomalyType `yaml:"anomalies"`
	Conditions []Condition          `yaml:"conditions"`
}

// Involves reports whether t is one of the rule's anomaly types.
func (r Rule) Involves(t models.AnomalyType) bool {
	for _, a := range r.Anomalies {
		if a == t {
			return true
		}
	}
	return false
}

// TimeThreshold returns the threshold of the first time condition.
func (r Rule) TimeThreshold() time.Duration {
	for _, c := range r.Conditions {
		if c.Kind == ConditionTime {
			return minutes(c.ThresholdMinutes)
		}
	}
	return defaultTimeThreshold
}

// TimeOverlapMet reports whether some time/overlap condition accepts delta.
// Rules without such a condition never satisfy it.
func (r Rule) TimeOverlapMet(delta time.Duration) bool {
	threshold := r.TimeThreshold()
	for _, c := range r.Conditions {
		if c.Kind == ConditionTime && c.Match == matchOverlap && delta <= threshold {
			return true
		}
	}
	return false
}

func (r Rule) clone() Rule {
	out := r
	out.Anomalies = append([]models.AnomalyType(nil), r.Anomalies...)
	out.Conditions = append([]Condition(nil), r.Conditions...)
	return out
}

func (r Rule) validate() error {
	if r.Name == "" {
		return errors.New("name required")
	}
	if len(r.Anomalies) != 2 {
		return fmt.Errorf("expected 2 anomaly types, got %d", len(r.Anomalies))
	}
	if r.Anomalies[0] == r.Anomalies[1] {
		return fmt.Errorf("anomaly types must differ, both are %s", r.Anomalies[0])
	}
	for _, a := range r.Anomalies {
		if !a.Known() {
			return fmt.Errorf("unknown anomaly type %q", a)
		}
	}
	for i, c := range r.Conditions {
		switch c.Kind {
		case ConditionUEIDs, ConditionTimeInterval:
		case ConditionTime:
			if c.ThresholdMinutes <= 0 {
				return fmt.Errorf("condition %d: threshold_minutes must be positive", i)
			}
		case ConditionLocation:
			if c.ThresholdKm <= 0 {
				return fmt.Errorf("condition %d: threshold_km must be positive", i)
			}
		case ConditionAdditionalMetric:
			switch c.Metric {
			case MetricSignalQuality, MetricConfidence, MetricExceptionLevel, MetricRatio:
			default:
				return fmt.Errorf("condition %d: unknown metric %q", i, c.Metric)
			}
		default:
			return fmt.Errorf("condition %d: unknown type %q", i, c.Kind)
		}
	}
	return nil
}

// RuleSet is the immutable correlation rule table.
type RuleSet struct {
	rules []Rule
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleSet returns the built-in rule table.
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRules)
}

// LoadRuleSet reads a rule table from path, or the built-in table when path is empty.
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRuleSet()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes and validates a YAML rule table.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("parse rules: no rules defined")
	}
	for i := range file.Rules {
		for j, a := range file.Rules[i].Anomalies {
			file.Rules[i].Anomalies[j] = a.Canonical()
		}
		if err := file.Rules[i].validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, file.Rules[i].Name, err)
		}
	}
	return &RuleSet{rules: file.Rules}, nil
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	return len(s.rules)
}

// Rules returns a copy of the table in declaration order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.clone()
	}
	return out
}

// ForType returns copies of the rules involving t, in declaration order.
func (s *RuleSet) ForType(t models.AnomalyType) []Rule {
	out := make([]Rule, 0, 4)
	for _, r := range s.rules {
		if r.Involves(t) {
			out = append(out, r.clone())
		}
	}
	return out
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
