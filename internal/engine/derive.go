package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
)

const (
	derivedFileTTL         = 30 * 24 * time.Hour
	derivedFileCompression = "zip"
	derivedFileFormat      = "JSON"

	defaultSupi         = "unknown"
	defaultTac          = "000000"
	defaultMcc          = "000"
	defaultMnc          = "00"
	defaultCellID       = "000000"
	defaultPduSessionID = "10"
	defaultDnn          = "internet"
	defaultSessionType  = "IPV4"
	unreachable         = "UNREACHABLE"

	eventAMFMobility     = "AMF_UE_MOBILITY"
	eventSMFSession      = "SMF_SESSION_ANOMALY"
	eventUDMReachability = "UDM_UE_REACHABILITY"
)

var defaultSnssai = models.Snssai{Sst: 1, Sd: "000000"}

// FunctionFor maps an anomaly type onto the network function owning it.
func FunctionFor(t models.AnomalyType) (models.NetworkFunction, bool) {
	switch t.Canonical() {
	case models.AnomalyUnexpectedUELocation, models.AnomalyUnexpectedRadioLinkFailure:
		return models.NetworkFunctionAMF, true
	case models.AnomalyUnexpectedLongLiveFlows, models.AnomalyUnexpectedLowRateFlows,
		models.AnomalyUnexpectedLargeRateFlows, models.AnomalySuspicionOfDDoSAttack:
		return models.NetworkFunctionSMF, true
	case models.AnomalyTooFrequentServiceAccess:
		return models.NetworkFunctionUDM, true
	default:
		return "", false
	}
}

// Derive builds the derived file for a correlated event. It returns nil when
// the event type belongs to no network function.
func Derive(event *models.AnomalyEvent, correlations []models.Correlation, now time.Time) (*models.DerivedFile, error) {
	fn, ok := FunctionFor(event.Type())
	if !ok {
		return nil, nil
	}
	b, _ := event.Behavior()
	supi := defaultSupi
	if len(b.Supis) > 0 && b.Supis[0] != "" {
		supi = b.Supis[0]
	}
	correlationData := append([]models.Correlation(nil), correlations...)

	var (
		category string
		content  models.DerivedContent
	)
	switch fn {
	case models.NetworkFunctionAMF:
		category = models.CategoryTrace
		content = models.AMFContent{
			EventID:         eventAMFMobility,
			Supi:            supi,
			EventTime:       event.GeneratedAt(),
			Location:        ueLocation(b),
			CorrelationData: correlationData,
		}
	case models.NetworkFunctionSMF:
		category = models.CategoryAnalytics
		content = models.SMFContent{
			EventID:        eventSMFSession,
			Supi:           supi,
			PduSessionID:   orDefault(b.PduSessionID, defaultPduSessionID),
			Dnn:            orDefault(b.Dnn, defaultDnn),
			Snssai:         snssaiOrDefault(b.Snssai),
			SessionType:    defaultSessionType,
			TrafficAnomaly: models.TrafficAnomaly{
				Type:       event.Type(),
				Ratio:      b.Ratio,
				Confidence: b.Confidence,
			},
			CorrelationData: correlationData,
		}
	case models.NetworkFunctionUDM:
		category = models.CategoryProprietary
		content = models.UDMContent{
			EventID:            eventUDMReachability,
			Supi:               supi,
			ReachabilityStatus: unreachable,
			Timestamp:          event.GeneratedAt(),
			CorrelationData:    correlationData,
		}
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode derived content: %w", err)
	}
	now = now.UTC()
	return &models.DerivedFile{
		FileDataType:       category,
		FileComponent:      fn,
		FileContent:        content,
		FileReadyTime:      now,
		FileExpirationTime: now.Add(derivedFileTTL),
		FileSize:           len(encoded),
		FileCompression:    derivedFileCompression,
		FileFormat:         derivedFileFormat,
	}, nil
}

func ueLocation(b models.AbnormalBehavior) models.UELocation {
	plmn := models.PlmnID{Mcc: defaultMcc, Mnc: defaultMnc}
	tac := defaultTac
	if area, ok := b.LocationArea(); ok {
		if area.Tac != "" {
			tac = string(area.Tac)
		}
		if area.PlmnID != nil {
			plmn.Mcc = orDefault(area.PlmnID.Mcc, defaultMcc)
			plmn.Mnc = orDefault(area.PlmnID.Mnc, defaultMnc)
		}
	}
	cellID := defaultCellID
	if perf, ok := b.NetworkPerformance(); ok && perf.CellID != "" {
		cellID = perf.CellID
	}
	return models.UELocation{
		Tai:  models.Tai{PlmnID: plmn, Tac: tac},
		Ecgi: models.Ecgi{PlmnID: plmn, EutraCellID: cellID},
	}
}

func snssaiOrDefault(s *models.Snssai) models.Snssai {
	if s == nil {
		return defaultSnssai
	}
	return *s
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
