package metrics

// Adapter methods so *Metrics satisfies the narrow interfaces consumers
// declare, avoiding circular imports.

func (m *Metrics) PredictionsInc()       { m.Predictions.Inc() }
func (m *Metrics) FlaggedInc()           { m.Flagged.Inc() }
func (m *Metrics) ValidationRejectsInc() { m.ValidationRejects.Inc() }

func (m *Metrics) ScoringLatencyObserve(v float64)     { m.ScoringLatency.Observe(v) }
func (m *Metrics) ExplanationLatencyObserve(v float64) { m.ExplanationLatency.Observe(v) }
func (m *Metrics) PredictionScoresObserve(v float64)   { m.PredictionScores.Observe(v) }

func (m *Metrics) ExplanationFailuresInc() { m.ExplanationFailures.Inc() }

func (m *Metrics) DegradedModeSet(v float64) { m.DegradedMode.Set(v) }
func (m *Metrics) ModelAgeSet(v float64)     { m.ModelAge.Set(v) }

func (m *Metrics) StorageErrorsInc()        { m.StorageErrors.Inc() }
func (m *Metrics) NotificationFailuresInc() { m.NotificationFailures.Inc() }
func (m *Metrics) AlertsSentInc()           { m.AlertsSent.Inc() }

func (m *Metrics) WSClientsAdd(delta float64) { m.WSClients.Add(delta) }
