package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistryIsolated(t *testing.T) {
	// two instances on separate registries must not collide
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())
	if a == nil || b == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
}

func TestAdapters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.PredictionsInc()
	m.PredictionsInc()
	m.FlaggedInc()
	m.ValidationRejectsInc()
	m.ExplanationFailuresInc()
	m.StorageErrorsInc()
	m.NotificationFailuresInc()
	m.AlertsSentInc()
	m.DegradedModeSet(1)
	m.ModelAgeSet(3600)
	m.WSClientsAdd(1)
	m.WSClientsAdd(-1)
	m.ScoringLatencyObserve(0.01)
	m.ExplanationLatencyObserve(0.2)
	m.PredictionScoresObserve(0.95)

	if v := testutil.ToFloat64(m.Predictions); v != 2 {
		t.Errorf("predictions = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.Flagged); v != 1 {
		t.Errorf("flagged = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.DegradedMode); v != 1 {
		t.Errorf("degraded gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.WSClients); v != 0 {
		t.Errorf("ws clients = %v, want 0", v)
	}
}
