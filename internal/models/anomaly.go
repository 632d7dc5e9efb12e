package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nwdaf-lab/hermes/internal/utils"
)

// AnomalyType is the excepId tag carried by an abnormal behaviour report.
type AnomalyType string

const (
	AnomalyUnexpectedUELocation       AnomalyType = "UNEXPECTED_UE_LOCATION"
	AnomalyUnexpectedLongLiveFlows    AnomalyType = "UNEXPECTED_LONG_LIVE_FLOWS"
	AnomalyUnexpectedLargeRateFlows   AnomalyType = "UNEXPECTED_LARGE_RATE_FLOWS"
	AnomalyUnexpectedLowRateFlows     AnomalyType = "UNEXPECTED_LOW_RATE_FLOWS"
	AnomalyUnexpectedRadioLinkFailure AnomalyType = "UNEXPECTED_RADIO_LINK_FAILURES"
	AnomalySuspicionOfDDoSAttack      AnomalyType = "SUSPICION_OF_DDOS_ATTACK"
	AnomalyTooFrequentServiceAccess   AnomalyType = "TOO_FREQUENT_SERVICE_ACCESS"
)

// anomalyAliases maps alternate spellings emitted by producers onto the canonical tag.
var anomalyAliases = map[AnomalyType]AnomalyType{
	"UNEXPECTED_LARGE_RATE_FLOW": AnomalyUnexpectedLargeRateFlows,
	"UNEXPECTED_LOW_RATE_FLOW":   AnomalyUnexpectedLowRateFlows,
}

// Known reports whether the canonical form of t is one of the anomaly types above.
func (t AnomalyType) Known() bool {
	switch t.Canonical() {
	case AnomalyUnexpectedUELocation, AnomalyUnexpectedLongLiveFlows, AnomalyUnexpectedLargeRateFlows,
		AnomalyUnexpectedLowRateFlows, AnomalyUnexpectedRadioLinkFailure, AnomalySuspicionOfDDoSAttack,
		AnomalyTooFrequentServiceAccess:
		return true
	default:
		return false
	}
}

// Canonical upper-cases the tag and resolves known aliases.
func (t AnomalyType) Canonical() AnomalyType {
	upper := AnomalyType(strings.ToUpper(strings.TrimSpace(string(t))))
	if canonical, ok := anomalyAliases[upper]; ok {
		return canonical
	}
	return upper
}

// Exception describes the anomaly type and its severity.
type Exception struct {
	ExcepID    AnomalyType `json:"excepId" bson:"excepId"`
	ExcepLevel int         `json:"excepLevel,omitempty" bson:"excepLevel,omitempty"`
	ExcepTrend string      `json:"excepTrend,omitempty" bson:"excepTrend,omitempty"`
}

// Snssai identifies a network slice.
type Snssai struct {
	Sst int    `json:"sst" bson:"sst"`
	Sd  string `json:"sd,omitempty" bson:"sd,omitempty"`
}

// AnomalyEvent is the root document of one reported anomaly occurrence.
type AnomalyEvent struct {
	ID                 string              `json:"_id,omitempty" bson:"_id,omitempty"`
	SubscriptionID     string              `json:"subscriptionId,omitempty" bson:"subscriptionId,omitempty"`
	EventNotifications []EventNotification `json:"eventNotifications" bson:"eventNotifications"`
	CorrelationData    []Correlation       `json:"correlationData,omitempty" bson:"correlationData"`
}

// EventNotification is one reported condition inside an AnomalyEvent.
type EventNotification struct {
	Event        string             `json:"event" bson:"event"`
	TimeStampGen time.Time          `json:"timeStampGen" bson:"timeStampGen"`
	Expiry       string             `json:"expiry,omitempty" bson:"expiry,omitempty"`
	AbnorBehavrs []AbnormalBehavior `json:"abnorBehavrs" bson:"abnorBehavrs"`
}

type eventNotificationJSON struct {
	Event        string             `json:"event"`
	TimeStampGen string             `json:"timeStampGen"`
	Expiry       string             `json:"expiry,omitempty"`
	AbnorBehavrs []AbnormalBehavior `json:"abnorBehavrs"`
}

// UnmarshalJSON decodes the notification and normalizes timeStampGen to UTC.
// A missing or malformed generation time is an error.
func (n *EventNotification) UnmarshalJSON(data []byte) error {
	var raw eventNotificationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := utils.ParseTimestamp(raw.TimeStampGen)
	if err != nil {
		return fmt.Errorf("timeStampGen: %w", err)
	}
	*n = EventNotification{
		Event:        raw.Event,
		TimeStampGen: ts,
		Expiry:       raw.Expiry,
		AbnorBehavrs: raw.AbnorBehavrs,
	}
	return nil
}

// ErrIncompleteEvent is returned by Validate when the document lacks the
// fields the correlation engine relies on.
var ErrIncompleteEvent = errors.New("anomaly event incomplete")

// Validate checks that the primary notification and behaviour are usable.
func (e *AnomalyEvent) Validate() error {
	if len(e.EventNotifications) == 0 {
		return fmt.Errorf("%w: no eventNotifications", ErrIncompleteEvent)
	}
	first := e.EventNotifications[0]
	if first.TimeStampGen.IsZero() {
		return fmt.Errorf("%w: timeStampGen missing", ErrIncompleteEvent)
	}
	if len(first.AbnorBehavrs) == 0 {
		return fmt.Errorf("%w: no abnorBehavrs", ErrIncompleteEvent)
	}
	if first.AbnorBehavrs[0].Excep.ExcepID == "" {
		return fmt.Errorf("%w: excepId missing", ErrIncompleteEvent)
	}
	return nil
}

// NormalizeTimestamps forces every generation time onto UTC.
func (e *AnomalyEvent) NormalizeTimestamps() {
	for i := range e.EventNotifications {
		e.EventNotifications[i].TimeStampGen = e.EventNotifications[i].TimeStampGen.UTC()
	}
}

// Behavior returns the first abnormal behaviour of the first notification.
func (e *AnomalyEvent) Behavior() (AbnormalBehavior, bool) {
	if len(e.EventNotifications) == 0 || len(e.EventNotifications[0].AbnorBehavrs) == 0 {
		return AbnormalBehavior{}, false
	}
	return e.EventNotifications[0].AbnorBehavrs[0], true
}

// Type returns the canonical anomaly type of the primary behaviour.
func (e *AnomalyEvent) Type() AnomalyType {
	b, ok := e.Behavior()
	if !ok {
		return ""
	}
	return b.Excep.ExcepID.Canonical()
}

// GeneratedAt returns the primary notification generation time.
func (e *AnomalyEvent) GeneratedAt() time.Time {
	if len(e.EventNotifications) == 0 {
		return time.Time{}
	}
	return e.EventNotifications[0].TimeStampGen
}

// UEIDs returns the set of SUPIs attached to the primary behaviour.
func (e *AnomalyEvent) UEIDs() map[string]struct{} {
	b, _ := e.Behavior()
	set := make(map[string]struct{}, len(b.Supis))
	for _, supi := range b.Supis {
		if supi == "" {
			continue
		}
		set[supi] = struct{}{}
	}
	return set
}
