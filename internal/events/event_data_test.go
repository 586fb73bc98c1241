package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunCompletedData tests RunCompletedData struct
func TestRunCompletedData(t *testing.T) {
	data := RunCompletedData{
		RunID:        "run-123",
		Horizon:      "2025-06-01",
		ForecastRows: 540,
		Duration:     4.2,
	}

	// Test JSON marshaling
	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "run-123")
	assert.Contains(t, string(jsonData), "2025-06-01")
	assert.Contains(t, string(jsonData), "540")

	// Test JSON unmarshaling
	var unmarshaled RunCompletedData
	err = json.Unmarshal(jsonData, &unmarshaled)
	require.NoError(t, err)
	assert.Equal(t, data.RunID, unmarshaled.RunID)
	assert.Equal(t, data.Horizon, unmarshaled.Horizon)
	assert.Equal(t, data.ForecastRows, unmarshaled.ForecastRows)
	assert.Equal(t, data.Duration, unmarshaled.Duration)
}

// TestChampionSelectedData tests ChampionSelectedData struct
func TestChampionSelectedData(t *testing.T) {
	data := ChampionSelectedData{
		Dataset:        "renewals",
		PreferredModel: "logistic",
		Reason:         "stability_guardrail",
		Changed:        true,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "renewals")
	assert.Contains(t, string(jsonData), "logistic")
	assert.Contains(t, string(jsonData), "stability_guardrail")

	var unmarshaled ChampionSelectedData
	err = json.Unmarshal(jsonData, &unmarshaled)
	require.NoError(t, err)
	assert.Equal(t, data, unmarshaled)
}

// TestEventTypeMapping verifies each payload reports its own event type
func TestEventTypeMapping(t *testing.T) {
	cases := []struct {
		data     EventData
		expected EventType
	}{
		{&RunStartedData{RunID: "r"}, RunStarted},
		{&RunCompletedData{RunID: "r"}, RunCompleted},
		{&RunFailedData{RunID: "r"}, RunFailed},
		{&StageDoneData{RunID: "r", Stage: "renewals"}, StageDone},
		{&ChampionSelectedData{Dataset: "renewals"}, ChampionSelected},
		{&GateEvaluatedData{Dataset: "pipeline"}, GateEvaluated},
		{&ForecastPublishedData{RunID: "r"}, ForecastPublished},
		{&ViolationsFoundData{RunID: "r"}, ViolationsFound},
		{&ArtifactsExportedData{RunID: "r"}, ArtifactsExported},
		{&ErrorEventData{Error: "boom"}, ErrorOccurred},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, tc.data.EventType())
	}
}

func TestBusDeliversToSubscribedType(t *testing.T) {
	bus := NewBus()

	var got []*Event
	bus.Subscribe(RunCompleted, func(e *Event) {
		got = append(got, e)
	})

	bus.Emit(RunStarted, "runner", map[string]interface{}{"run_id": "r1"})
	bus.Emit(RunCompleted, "runner", map[string]interface{}{"run_id": "r1"})

	require.Len(t, got, 1)
	assert.Equal(t, RunCompleted, got[0].Type)
	assert.Equal(t, "runner", got[0].Module)
	assert.Equal(t, "r1", got[0].Data["run_id"])
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	count := 0
	bus.Subscribe(ViolationsFound, func(*Event) { count++ })
	bus.Subscribe(ViolationsFound, func(*Event) { count++ })

	bus.Emit(ViolationsFound, "quality", nil)
	assert.Equal(t, 2, count)
}

func TestManagerEmitTyped(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(RunFailed, func(e *Event) { got = e })

	manager.EmitTyped("runner", &RunFailedData{RunID: "r2", Stage: "backtest", Error: "boom"})

	require.NotNil(t, got)
	assert.Equal(t, RunFailed, got.Type)
	assert.Equal(t, "r2", got.Data["run_id"])
	assert.Equal(t, "backtest", got.Data["stage"])
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("export", errors.New("upload failed"), map[string]interface{}{"bucket": "b"})

	require.NotNil(t, got)
	assert.Equal(t, "upload failed", got.Data["error"])
}
