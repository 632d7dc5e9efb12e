package models

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
)

// AbnormalBehavior is the anomaly payload of an event notification.
type AbnormalBehavior struct {
	Supis        []string
	Excep        Exception
	Dnn          string
	Snssai       *Snssai
	Ratio        float64
	Confidence   float64
	PduSessionID string
	// AddtMeasInfo is nil when the producer attached no measurement block.
	AddtMeasInfo MeasurementInfo
}

// abnormalBehaviorWire is the shape shared by the JSON and BSON codecs.
type abnormalBehaviorWire struct {
	Supis        []string         `json:"supis,omitempty" bson:"supis,omitempty"`
	Excep        Exception        `json:"excep" bson:"excep"`
	Dnn          string           `json:"dnn,omitempty" bson:"dnn,omitempty"`
	Snssai       *Snssai          `json:"snssai,omitempty" bson:"snssai,omitempty"`
	Ratio        float64          `json:"ratio" bson:"ratio"`
	Confidence   float64          `json:"confidence" bson:"confidence"`
	PduSessionID string           `json:"pduSessionId,omitempty" bson:"pduSessionId,omitempty"`
	AddtMeasInfo *measurementWire `json:"addtMeasInfo,omitempty" bson:"addtMeasInfo,omitempty"`
}

func (b AbnormalBehavior) toWire() abnormalBehaviorWire {
	w := abnormalBehaviorWire{
		Supis:        b.Supis,
		Excep:        b.Excep,
		Dnn:          b.Dnn,
		Snssai:       b.Snssai,
		Ratio:        b.Ratio,
		Confidence:   b.Confidence,
		PduSessionID: b.PduSessionID,
	}
	if b.AddtMeasInfo != nil {
		mw := encodeMeasurement(b.AddtMeasInfo)
		w.AddtMeasInfo = &mw
	}
	return w
}

func (w abnormalBehaviorWire) toModel() AbnormalBehavior {
	b := AbnormalBehavior{
		Supis:        w.Supis,
		Excep:        w.Excep,
		Dnn:          w.Dnn,
		Snssai:       w.Snssai,
		Ratio:        w.Ratio,
		Confidence:   w.Confidence,
		PduSessionID: w.PduSessionID,
	}
	if w.AddtMeasInfo != nil {
		b.AddtMeasInfo = decodeMeasurement(w.Excep.ExcepID.Canonical(), *w.AddtMeasInfo)
	}
	return b
}

// MarshalJSON implements json.Marshaler.
func (b AbnormalBehavior) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *AbnormalBehavior) UnmarshalJSON(data []byte) error {
	var w abnormalBehaviorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = w.toModel()
	return nil
}

// MarshalBSON implements bson.Marshaler.
func (b AbnormalBehavior) MarshalBSON() ([]byte, error) {
	return bson.Marshal(b.toWire())
}

// UnmarshalBSON implements bson.Unmarshaler.
func (b *AbnormalBehavior) UnmarshalBSON(data []byte) error {
	var w abnormalBehaviorWire
	if err := bson.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = w.toModel()
	return nil
}

// Location returns the coordinates recorded by the behaviour's measurement
// block, if the active variant carries any.
func (b AbnormalBehavior) Location() (LocationArea, bool) {
	switch m := b.AddtMeasInfo.(type) {
	case nil:
		return LocationArea{}, false
	case CircumstanceInfo:
		return firstCircumstanceArea(m.Circums)
	case DDoSInfo:
		return firstCircumstanceArea(m.Circums)
	case ServiceExperienceInfo:
		if len(m.SvcExps) == 0 || len(m.SvcExps[0].UELocs) == 0 {
			return LocationArea{}, false
		}
		area := m.SvcExps[0].UELocs[0]
		return area, area.HasCoordinates()
	case NetworkPerformanceInfo:
		return LocationArea{}, false
	default:
		return LocationArea{}, false
	}
}

// LocationArea returns the raw circumstance/UE location block, even when it
// has no coordinates. Used when building TAI information.
func (b AbnormalBehavior) LocationArea() (LocationArea, bool) {
	switch m := b.AddtMeasInfo.(type) {
	case CircumstanceInfo:
		if len(m.Circums) > 0 {
			return m.Circums[0].LocArea, true
		}
	case DDoSInfo:
		if len(m.Circums) > 0 {
			return m.Circums[0].LocArea, true
		}
	case ServiceExperienceInfo:
		if len(m.SvcExps) > 0 && len(m.SvcExps[0].UELocs) > 0 {
			return m.SvcExps[0].UELocs[0], true
		}
	case NetworkPerformanceInfo, nil:
	}
	return LocationArea{}, false
}

// NetworkPerformance returns the first radio-link measurement, if present.
func (b AbnormalBehavior) NetworkPerformance() (NetworkPerformance, bool) {
	switch m := b.AddtMeasInfo.(type) {
	case NetworkPerformanceInfo:
		if len(m.NwPerfs) > 0 {
			return m.NwPerfs[0], true
		}
	case CircumstanceInfo, DDoSInfo, ServiceExperienceInfo, nil:
	}
	return NetworkPerformance{}, false
}

func firstCircumstanceArea(circums []Circumstance) (LocationArea, bool) {
	if len(circums) == 0 {
		return LocationArea{}, false
	}
	area := circums[0].LocArea
	return area, area.HasCoordinates()
}
