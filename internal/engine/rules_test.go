package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdaf-lab/hermes/internal/models"
)

func TestDefaultRuleSet(t *testing.T) {
	rules, err := DefaultRuleSet()
	require.NoError(t, err)
	assert.Equal(t, 15, rules.Len())

	for _, r := range rules.Rules() {
		require.Len(t, r.Anomalies, 2, r.Name)
		assert.NotEqual(t, r.Anomalies[0], r.Anomalies[1], r.Name)
	}

	first := rules.Rules()[0]
	assert.Equal(t, 60*time.Minute, first.TimeThreshold())
	assert.True(t, first.Involves(models.AnomalyTooFrequentServiceAccess))
}

func TestRuleSetReturnsCopies(t *testing.T) {
	rules := mustRules()
	list := rules.Rules()
	list[0].Name = "mutated"
	list[0].Anomalies[0] = models.AnomalyUnexpectedUELocation

	again := rules.Rules()
	assert.NotEqual(t, "mutated", again[0].Name)
	assert.Equal(t, models.AnomalyUnexpectedRadioLinkFailure, again[0].Anomalies[0])
}

func TestForType(t *testing.T) {
	rules := mustRules()
	for _, r := range rules.ForType(models.AnomalyUnexpectedUELocation) {
		assert.True(t, r.Involves(models.AnomalyUnexpectedUELocation))
	}
	assert.Len(t, rules.ForType(models.AnomalyUnexpectedUELocation), 1)
}

func TestTimeIntervalRuleNeverSatisfiesOverlap(t *testing.T) {
	rule := Rule{
		Name:      "interval only",
		Anomalies: []models.AnomalyType{models.AnomalySuspicionOfDDoSAttack, models.AnomalyTooFrequentServiceAccess},
		Conditions: []Condition{
			{Kind: ConditionUEIDs, Match: "intersection"},
			{Kind: ConditionTimeInterval, Match: "contains"},
		},
	}
	assert.Equal(t, defaultTimeThreshold, rule.TimeThreshold())
	assert.False(t, rule.TimeOverlapMet(0))
}

func TestParseRuleSetValidation(t *testing.T) {
	cases := map[string]string{
		"empty":          "rules: []",
		"same types":     "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, SUSPICION_OF_DDOS_ATTACK]\n",
		"one type":       "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK]\n",
		"unknown type":   "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, SOLAR_FLARE]\n",
		"bad threshold":  "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, TOO_FREQUENT_SERVICE_ACCESS]\n    conditions:\n      - {type: time, match: overlap}\n",
		"unknown metric": "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, TOO_FREQUENT_SERVICE_ACCESS]\n    conditions:\n      - {type: additional_metric, metric: noise}\n",
		"unknown kind":   "rules:\n  - name: x\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, TOO_FREQUENT_SERVICE_ACCESS]\n    conditions:\n      - {type: weather}\n",
	}
	for name, doc := range cases {
		_, err := ParseRuleSet([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestParseRuleSetCanonicalizesAliases(t *testing.T) {
	doc := "rules:\n  - name: x\n    anomalies: [unexpected_large_rate_flow, TOO_FREQUENT_SERVICE_ACCESS]\n    conditions:\n      - {type: time, match: overlap, threshold_minutes: 15}\n"
	rules, err := ParseRuleSet([]byte(doc))
	require.NoError(t, err)
	assert.True(t, rules.Rules()[0].Involves(models.AnomalyUnexpectedLargeRateFlows))
}

func TestLoadRuleSetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := "rules:\n  - name: custom\n    anomalies: [SUSPICION_OF_DDOS_ATTACK, TOO_FREQUENT_SERVICE_ACCESS]\n    conditions:\n      - {type: ue_ids, match: intersection}\n      - {type: time, match: overlap, threshold_minutes: 10}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rules, err := LoadRuleSet(path)
	require.NoError(t, err)
	require.Equal(t, 1, rules.Len())
	assert.Equal(t, "custom", rules.Rules()[0].Name)

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
