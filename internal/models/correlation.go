package models

// Correlation links an event to an earlier event of a different anomaly type.
type Correlation struct {
	RuleName          string  `json:"ruleName" bson:"ruleName"`
	CorrelatedEventID string  `json:"correlatedEventId" bson:"correlatedEventId"`
	Score             float64 `json:"score" bson:"score"`
}
