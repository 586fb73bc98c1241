package events

import (
	"encoding/json"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID     string `json:"run_id"`
	CompanyID string `json:"company_id,omitempty"`
	Trigger   string `json:"trigger"` // "api", "schedule", "startup"
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID        string  `json:"run_id"`
	Horizon      string  `json:"horizon"`
	ForecastRows int     `json:"forecast_rows"`
	Duration     float64 `json:"duration"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// StageDoneData contains data for StageDone events
type StageDoneData struct {
	RunID    string  `json:"run_id"`
	Stage    string  `json:"stage"`
	Rows     int     `json:"rows,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// EventType returns the event type for StageDoneData
func (d *StageDoneData) EventType() EventType {
	return StageDone
}

// ChampionSelectedData contains data for ChampionSelected events
type ChampionSelectedData struct {
	Dataset        string `json:"dataset"`
	PreferredModel string `json:"preferred_model"`
	Reason         string `json:"reason"`
	Changed        bool   `json:"changed"`
}

// EventType returns the event type for ChampionSelectedData
func (d *ChampionSelectedData) EventType() EventType {
	return ChampionSelected
}

// GateEvaluatedData contains data for GateEvaluated events
type GateEvaluatedData struct {
	Dataset     string `json:"dataset"`
	Passed      bool   `json:"passed"`
	CutoffMonth string `json:"cutoff_month,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// EventType returns the event type for GateEvaluatedData
func (d *GateEvaluatedData) EventType() EventType {
	return GateEvaluated
}

// ForecastPublishedData contains data for ForecastPublished events
type ForecastPublishedData struct {
	RunID      string `json:"run_id"`
	Months     int    `json:"months"`
	Segments   int    `json:"segments"`
	TotalRows  int    `json:"total_rows"`
	Reconciled bool   `json:"reconciled"`
}

// EventType returns the event type for ForecastPublishedData
func (d *ForecastPublishedData) EventType() EventType {
	return ForecastPublished
}

// ViolationsFoundData contains data for ViolationsFound events
type ViolationsFoundData struct {
	RunID string         `json:"run_id"`
	Count int            `json:"count"`
	Rules map[string]int `json:"rules,omitempty"`
}

// EventType returns the event type for ViolationsFoundData
func (d *ViolationsFoundData) EventType() EventType {
	return ViolationsFound
}

// ArtifactsExportedData contains data for ArtifactsExported events
type ArtifactsExportedData struct {
	RunID    string `json:"run_id"`
	Dir      string `json:"dir"`
	Files    int    `json:"files"`
	Uploaded bool   `json:"uploaded"`
}

// EventType returns the event type for ArtifactsExportedData
func (d *ArtifactsExportedData) EventType() EventType {
	return ArtifactsExported
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// convertEventDataToMap converts typed EventData to map[string]interface{} for
// the wire-level Event payload
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
