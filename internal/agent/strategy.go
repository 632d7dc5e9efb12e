package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nwdaf-lab/hermes/internal/config"
	"github.com/nwdaf-lab/hermes/internal/models"
)

// Document is a fetched anomaly file kept as raw JSON members so unknown
// fields survive forwarding untouched.
type Document map[string]json.RawMessage

// Filter decides whether an anomaly type is relevant to an agent.
type Filter func(models.AnomalyType) bool

// AcceptAll passes every document, including ones without an exception id.
func AcceptAll() Filter {
	return func(models.AnomalyType) bool { return true }
}

// AllowList passes only the listed types. Aliases are folded to their
// canonical spelling on both sides.
func AllowList(types ...models.AnomalyType) Filter {
	allowed := make(map[models.AnomalyType]struct{}, len(types))
	for _, t := range types {
		allowed[t.Canonical()] = struct{}{}
	}
	return func(t models.AnomalyType) bool {
		_, ok := allowed[t.Canonical()]
		return ok
	}
}

// Only passes a single type.
func Only(t models.AnomalyType) Filter {
	return AllowList(t)
}

// Transform turns a fetched document into the body posted to the engine.
type Transform func(category string, doc Document) (any, error)

// RawDocument forwards the document without its fileInfo member.
func RawDocument(_ string, doc Document) (any, error) {
	return withoutFileInfo(doc), nil
}

// Envelope wraps the document as {event_type, event_data}, lifting the file
// metadata next to the content.
func Envelope(category string, doc Document) (any, error) {
	var info struct {
		FileLocation    json.RawMessage `json:"fileLocation"`
		FileReadyTime   json.RawMessage `json:"fileReadyTime"`
		FileSize        json.RawMessage `json:"fileSize"`
		FileCompression json.RawMessage `json:"fileCompression"`
		FileFormat      json.RawMessage `json:"fileFormat"`
		FileDataType    json.RawMessage `json:"fileDataType"`
	}
	if raw, ok := doc["fileInfo"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("decode fileInfo: %w", err)
		}
	}

	data := map[string]json.RawMessage{
		"_id":             orNull(doc["_id"]),
		"fileLocation":    orNull(info.FileLocation),
		"fileReadyTime":   orNull(info.FileReadyTime),
		"fileSize":        orNull(info.FileSize),
		"fileCompression": orNull(info.FileCompression),
		"fileFormat":      orNull(info.FileFormat),
		"fileDataType":    orNull(info.FileDataType),
	}
	content, err := json.Marshal(withoutFileInfo(doc))
	if err != nil {
		return nil, fmt.Errorf("encode fileContent: %w", err)
	}
	data["fileContent"] = content

	// Optional blocks are lifted only when their key member is truthy.
	if truthy(doc["analysisId"]) {
		data["analysisId"] = doc["analysisId"]
		data["findings"] = orNull(doc["findings"])
		data["generatedOn"] = orNull(doc["generatedOn"])
	}
	if truthy(doc["vendorSpecificData"]) {
		data["vendorSpecificData"] = doc["vendorSpecificData"]
	}
	if truthy(doc["sessionId"]) {
		data["sessionId"] = doc["sessionId"]
		data["events"] = orNull(doc["events"])
	}

	return map[string]any{
		"event_type": "NEW_" + strings.ToUpper(category) + "_FILE",
		"event_data": data,
	}, nil
}

// Strategy is the per-agent relevance and forwarding policy.
type Strategy struct {
	Filter  Filter
	Forward Transform
}

// StrategyFor builds the strategy described by an agent configuration.
func StrategyFor(cfg config.AgentConfig) (Strategy, error) {
	var s Strategy
	switch cfg.Filter.Kind {
	case "", config.FilterAcceptAll:
		s.Filter = AcceptAll()
	case config.FilterAllowList:
		s.Filter = AllowList(anomalyTypes(cfg.Filter.Anomalies)...)
	case config.FilterOnly:
		if len(cfg.Filter.Anomalies) != 1 {
			return Strategy{}, fmt.Errorf("agent %s: filter %q needs exactly one anomaly", cfg.Name, cfg.Filter.Kind)
		}
		s.Filter = Only(models.AnomalyType(cfg.Filter.Anomalies[0]))
	default:
		return Strategy{}, fmt.Errorf("agent %s: unknown filter kind %q", cfg.Name, cfg.Filter.Kind)
	}

	switch cfg.Forward {
	case "", config.ForwardRaw:
		s.Forward = RawDocument
	case config.ForwardEnvelope:
		s.Forward = Envelope
	default:
		return Strategy{}, fmt.Errorf("agent %s: unknown forward mode %q", cfg.Name, cfg.Forward)
	}
	return s, nil
}

func anomalyTypes(values []string) []models.AnomalyType {
	out := make([]models.AnomalyType, 0, len(values))
	for _, v := range values {
		out = append(out, models.AnomalyType(v))
	}
	return out
}

// exceptionID reads eventNotifications[0].abnorBehavrs[0].excep.excepId.
// Any missing step yields the empty type.
func exceptionID(doc Document) models.AnomalyType {
	raw, ok := doc["eventNotifications"]
	if !ok {
		return ""
	}
	var notifications []struct {
		AbnorBehavrs []struct {
			Excep struct {
				ExcepID string `json:"excepId"`
			} `json:"excep"`
		} `json:"abnorBehavrs"`
	}
	if err := json.Unmarshal(raw, &notifications); err != nil {
		return ""
	}
	if len(notifications) == 0 || len(notifications[0].AbnorBehavrs) == 0 {
		return ""
	}
	return models.AnomalyType(notifications[0].AbnorBehavrs[0].Excep.ExcepID)
}

func withoutFileInfo(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == "fileInfo" {
			continue
		}
		out[k] = v
	}
	return out
}

var jsonNull = json.RawMessage("null")

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return jsonNull
	}
	return raw
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	return true
}
