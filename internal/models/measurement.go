package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// MeasurementInfo is the additional measurement block attached to an
// abnormal behaviour. Exactly one of the variants below is active.
type MeasurementInfo interface {
	isMeasurementInfo()
}

// CircumstanceInfo reports where an unexpected UE location was observed.
type CircumstanceInfo struct {
	Circums []Circumstance
}

// ServiceExperienceInfo reports degraded service experience for flows and
// service access anomalies.
type ServiceExperienceInfo struct {
	SvcExps []ServiceExperience
}

// DDoSInfo reports the suspected attack sources and where they were seen.
type DDoSInfo struct {
	Attack  DDoSAttack
	Circums []Circumstance
}

// NetworkPerformanceInfo reports radio-link measurements.
type NetworkPerformanceInfo struct {
	NwPerfs []NetworkPerformance
}

func (CircumstanceInfo) isMeasurementInfo()       {}
func (ServiceExperienceInfo) isMeasurementInfo()  {}
func (DDoSInfo) isMeasurementInfo()               {}
func (NetworkPerformanceInfo) isMeasurementInfo() {}

// PlmnID identifies a public land mobile network.
type PlmnID struct {
	Mcc string `json:"mcc" bson:"mcc"`
	Mnc string `json:"mnc" bson:"mnc"`
}

// LocationArea is a geographic point plus optional tracking-area data.
type LocationArea struct {
	Latitude  *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Tac       Tac      `json:"tac,omitempty" bson:"tac,omitempty"`
	PlmnID    *PlmnID  `json:"plmnId,omitempty" bson:"plmnId,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l LocationArea) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Tac is a tracking area code. Producers send it either as a number or as a
// string; it is always kept in string form.
type Tac string

// UnmarshalJSON accepts both JSON numbers and strings.
func (t *Tac) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Tac(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tac: %w", err)
	}
	*t = Tac(n.String())
	return nil
}

// UnmarshalBSONValue accepts string and numeric BSON values.
func (t *Tac) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: typ, Value: data}
	switch typ {
	case bsontype.String:
		*t = Tac(rv.StringValue())
	case bsontype.Int32:
		*t = Tac(strconv.FormatInt(int64(rv.Int32()), 10))
	case bsontype.Int64:
		*t = Tac(strconv.FormatInt(rv.Int64(), 10))
	case bsontype.Double:
		*t = Tac(strconv.FormatFloat(rv.Double(), 'f', -1, 64))
	case bsontype.Null, bsontype.Undefined:
		*t = ""
	default:
		return fmt.Errorf("tac: unsupported bson type %s", typ)
	}
	return nil
}

// Circumstance is one location observation.
type Circumstance struct {
	Freq    float64      `json:"freq,omitempty" bson:"freq,omitempty"`
	Tm      string       `json:"tm,omitempty" bson:"tm,omitempty"`
	LocArea LocationArea `json:"locArea" bson:"locArea"`
	Vol     int64        `json:"vol,omitempty" bson:"vol,omitempty"`
}

// ServiceExperience is one service experience record.
type ServiceExperience struct {
	Supis       []string       `json:"supis,omitempty" bson:"supis,omitempty"`
	AppID       string         `json:"appId,omitempty" bson:"appId,omitempty"`
	SrvExpcType string         `json:"srvExpcType,omitempty" bson:"srvExpcType,omitempty"`
	UELocs      []LocationArea `json:"ueLocs,omitempty" bson:"ueLocs,omitempty"`
	Dnn         string         `json:"dnn,omitempty" bson:"dnn,omitempty"`
	Confidence  float64        `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Ratio       float64        `json:"ratio,omitempty" bson:"ratio,omitempty"`
}

// DDoSAttack lists suspected attacker addresses.
type DDoSAttack struct {
	Ipv4Addrs []string `json:"ipv4Addrs,omitempty" bson:"ipv4Addrs,omitempty"`
	Ipv6Addrs []string `json:"ipv6Addrs,omitempty" bson:"ipv6Addrs,omitempty"`
}

// NetworkPerformance is one radio-link measurement.
type NetworkPerformance struct {
	CellID           string        `json:"cellId,omitempty" bson:"cellId,omitempty"`
	FailureCount     int           `json:"failureCount,omitempty" bson:"failureCount,omitempty"`
	FailureType      string        `json:"failureType,omitempty" bson:"failureType,omitempty"`
	SignalQuality    SignalQuality `json:"signalQuality" bson:"signalQuality"`
	NeighboringCells []string      `json:"neighboringCells,omitempty" bson:"neighboringCells,omitempty"`
}

// SignalQuality carries unit-suffixed readings such as "-95.50 dBm".
type SignalQuality struct {
	RSRP string `json:"RSRP,omitempty" bson:"RSRP,omitempty"`
	SINR string `json:"SINR,omitempty" bson:"SINR,omitempty"`
}

const (
	defaultRSRP = -120.0
	defaultSINR = 0.0
)

// RSRPValue returns the numeric RSRP in dBm, or -120 when absent or unreadable.
func (s SignalQuality) RSRPValue() float64 {
	return leadingFloat(s.RSRP, defaultRSRP)
}

// SINRValue returns the numeric SINR in dB, or 0 when absent or unreadable.
func (s SignalQuality) SINRValue() float64 {
	return leadingFloat(s.SINR, defaultSINR)
}

func leadingFloat(value string, fallback float64) float64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return fallback
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fallback
	}
	return f
}

// measurementWire is the flat on-the-wire form of a MeasurementInfo.
type measurementWire struct {
	Circums    []Circumstance       `json:"circums,omitempty" bson:"circums,omitempty"`
	SvcExps    []ServiceExperience  `json:"svcExps,omitempty" bson:"svcExps,omitempty"`
	DDoSAttack *DDoSAttack          `json:"ddosAttack,omitempty" bson:"ddosAttack,omitempty"`
	NwPerfs    []NetworkPerformance `json:"nwPerfs,omitempty" bson:"nwPerfs,omitempty"`
}

func encodeMeasurement(m MeasurementInfo) measurementWire {
	switch v := m.(type) {
	case CircumstanceInfo:
		return measurementWire{Circums: v.Circums}
	case ServiceExperienceInfo:
		return measurementWire{SvcExps: v.SvcExps}
	case DDoSInfo:
		attack := v.Attack
		return measurementWire{DDoSAttack: &attack, Circums: v.Circums}
	case NetworkPerformanceInfo:
		return measurementWire{NwPerfs: v.NwPerfs}
	default:
		return measurementWire{}
	}
}

type measurementVariant int

const (
	variantNone measurementVariant = iota
	variantCircumstance
	variantServiceExperience
	variantDDoS
	variantNetworkPerformance
)

func variantForType(t AnomalyType) measurementVariant {
	switch t {
	case AnomalyUnexpectedUELocation:
		return variantCircumstance
	case AnomalySuspicionOfDDoSAttack:
		return variantDDoS
	case AnomalyUnexpectedRadioLinkFailure:
		return variantNetworkPerformance
	case AnomalyUnexpectedLongLiveFlows, AnomalyUnexpectedLargeRateFlows,
		AnomalyUnexpectedLowRateFlows, AnomalyTooFrequentServiceAccess:
		return variantServiceExperience
	default:
		return variantNone
	}
}

func (w measurementWire) has(v measurementVariant) bool {
	switch v {
	case variantCircumstance:
		return len(w.Circums) > 0
	case variantServiceExperience:
		return len(w.SvcExps) > 0
	case variantDDoS:
		return w.DDoSAttack != nil
	case variantNetworkPerformance:
		return len(w.NwPerfs) > 0
	default:
		return false
	}
}

// decodeMeasurement picks the variant implied by the anomaly type, falling
// back to whichever keys the producer actually sent.
func decodeMeasurement(t AnomalyType, w measurementWire) MeasurementInfo {
	variant := variantForType(t)
	if !w.has(variant) {
		variant = variantNone
		for _, candidate := range []measurementVariant{variantDDoS, variantNetworkPerformance, variantServiceExperience, variantCircumstance} {
			if w.has(candidate) {
				variant = candidate
				break
			}
		}
	}
	switch variant {
	case variantCircumstance:
		return CircumstanceInfo{Circums: w.Circums}
	case variantServiceExperience:
		return ServiceExperienceInfo{SvcExps: w.SvcExps}
	case variantDDoS:
		return DDoSInfo{Attack: *w.DDoSAttack, Circums: w.Circums}
	case variantNetworkPerformance:
		return NetworkPerformanceInfo{NwPerfs: w.NwPerfs}
	default:
		return nil
	}
}
