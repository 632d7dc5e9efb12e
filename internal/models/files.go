package models

import "time"

// File data categories understood by the file-reporting service.
const (
	CategoryTrace       = "Trace"
	CategoryPerformance = "Performance"
	CategoryAnalytics   = "Analytics"
	CategoryProprietary = "Proprietary"
)

// FileInfo describes a file held by the file-reporting service.
type FileInfo struct {
	FileLocation       string `json:"fileLocation,omitempty"`
	FileDataType       string `json:"fileDataType,omitempty"`
	FileReadyTime      string `json:"fileReadyTime,omitempty"`
	FileExpirationTime string `json:"fileExpirationTime,omitempty"`
	FileSize           int64  `json:"fileSize,omitempty"`
	FileCompression    string `json:"fileCompression,omitempty"`
	FileFormat         string `json:"fileFormat,omitempty"`
}

// Notification is the "file ready" callback body.
type Notification struct {
	FileInfoList []FileInfo `json:"fileInfoList"`
}

// SubscriptionFilter restricts a subscription to one category.
type SubscriptionFilter struct {
	FileDataType string `json:"fileDataType"`
}

// SubscriptionRequest registers a callback with the subscription registry.
type SubscriptionRequest struct {
	ConsumerReference string             `json:"consumerReference"`
	Filter            SubscriptionFilter `json:"filter"`
}

// NetworkFunction names the function a derived file is attributed to.
type NetworkFunction string

const (
	NetworkFunctionAMF NetworkFunction = "AMF"
	NetworkFunctionSMF NetworkFunction = "SMF"
	NetworkFunctionUDM NetworkFunction = "UDM"
)

// DerivedContent is the function-specific body of a derived file.
type DerivedContent interface {
	Function() NetworkFunction
}

// DerivedFile is uploaded when an incoming event correlates with earlier ones.
type DerivedFile struct {
	FileDataType       string          `json:"fileDataType"`
	FileComponent      NetworkFunction `json:"fileComponent"`
	FileContent        DerivedContent  `json:"fileContent"`
	FileReadyTime      time.Time       `json:"fileReadyTime"`
	FileExpirationTime time.Time       `json:"fileExpirationTime"`
	FileSize           int             `json:"fileSize"`
	FileCompression    string          `json:"fileCompression"`
	FileFormat         string          `json:"fileFormat"`
}

// Tai is a tracking area identity.
type Tai struct {
	PlmnID PlmnID `json:"plmnId"`
	Tac    string `json:"tac"`
}

// Ecgi is an E-UTRA cell global identifier.
type Ecgi struct {
	PlmnID      PlmnID `json:"plmnId"`
	EutraCellID string `json:"eutraCellId"`
}

// UELocation pairs the tracking area and the serving cell.
type UELocation struct {
	Tai  Tai  `json:"tai"`
	Ecgi Ecgi `json:"ecgi"`
}

// AMFContent reports UE mobility for location and radio-link anomalies.
type AMFContent struct {
	EventID         string        `json:"eventId"`
	Supi            string        `json:"supi"`
	EventTime       time.Time     `json:"eventTime"`
	Location        UELocation    `json:"location"`
	CorrelationData []Correlation `json:"correlationData"`
}

// TrafficAnomaly summarises the offending flow.
type TrafficAnomaly struct {
	Type       AnomalyType `json:"type"`
	Ratio      float64     `json:"ratio"`
	Confidence float64     `json:"confidence"`
}

// SMFContent reports a session anomaly for flow and DDoS anomalies.
type SMFContent struct {
	EventID         string         `json:"eventId"`
	Supi            string         `json:"supi"`
	PduSessionID    string         `json:"pduSessionId"`
	Dnn             string         `json:"dnn"`
	Snssai          Snssai         `json:"snssai"`
	SessionType     string         `json:"sessionType"`
	TrafficAnomaly  TrafficAnomaly `json:"trafficAnomaly"`
	CorrelationData []Correlation  `json:"correlationData"`
}

// UDMContent reports UE reachability for service access anomalies.
type UDMContent struct {
	EventID            string        `json:"eventId"`
	Supi               string        `json:"supi"`
	ReachabilityStatus string        `json:"reachabilityStatus"`
	Timestamp          time.Time     `json:"timestamp"`
	CorrelationData    []Correlation `json:"correlationData"`
}

func (AMFContent) Function() NetworkFunction { return NetworkFunctionAMF }
func (SMFContent) Function() NetworkFunction { return NetworkFunctionSMF }
func (UDMContent) Function() NetworkFunction { return NetworkFunctionUDM }

// UploadResponse is returned by the file-reporting service on upload.
type UploadResponse struct {
	FileID string `json:"fileId"`
}
