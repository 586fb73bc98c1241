// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Run lifecycle events
	RunStarted   EventType = "RUN_STARTED"
	RunCompleted EventType = "RUN_COMPLETED"
	RunFailed    EventType = "RUN_FAILED"
	StageDone    EventType = "STAGE_DONE"

	// Model governance events
	ChampionSelected EventType = "CHAMPION_SELECTED"
	GateEvaluated    EventType = "GATE_EVALUATED"

	// Publication events
	ForecastPublished EventType = "FORECAST_PUBLISHED"
	ViolationsFound   EventType = "VIOLATIONS_FOUND"
	ArtifactsExported EventType = "ARTIFACTS_EXPORTED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
