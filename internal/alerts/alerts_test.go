package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trustnet/internal/ml"
	"trustnet/internal/transaction"
)

type countingMetrics struct {
	sent     int
	failures int
}

func (m *countingMetrics) AlertsSentInc()           { m.sent++ }
func (m *countingMetrics) NotificationFailuresInc() { m.failures++ }

func flaggedResult() (transaction.Transaction, *ml.Result) {
	tx := transaction.Transaction{
		Type:           "TRANSFER",
		Amount:         5400.5,
		NameOrig:       "C123",
		OldBalanceOrig: 5400.5,
		NameDest:       "C456",
	}
	result := &ml.Result{
		TransactionID:    "C123-1",
		FraudProbability: 0.97,
		IsFraud:          true,
		Timestamp:        time.Now().UTC(),
		Explanation: []ml.ExplanationEntry{
			{Feature: "transactionRatio", Value: 1, Impact: 0.5},
			{Feature: "type=TRANSFER", Value: 1, Impact: 0.3},
		},
	}
	return tx, result
}

func TestNotifyDeliversToBothChannels(t *testing.T) {
	var slackBody, webhookBody []byte
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackBody, _ = io.ReadAll(r.Body)
	}))
	defer slack.Close()
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookBody, _ = io.ReadAll(r.Body)
	}))
	defer webhook.Close()

	metrics := &countingMetrics{}
	n := New(slack.URL, webhook.URL, time.Second, metrics)
	if !n.Enabled() {
		t.Fatal("notifier with both URLs must be enabled")
	}

	tx, result := flaggedResult()
	outcome := n.Notify(tx, result)
	if !outcome[ChannelSlack] || !outcome[ChannelWebhook] {
		t.Fatalf("outcome = %v, want both channels true", outcome)
	}
	if metrics.sent != 2 || metrics.failures != 0 {
		t.Errorf("sent/failures = %d/%d, want 2/0", metrics.sent, metrics.failures)
	}

	var msg slackMessage
	if err := json.Unmarshal(slackBody, &msg); err != nil {
		t.Fatalf("slack body not JSON: %v", err)
	}
	if !strings.Contains(msg.Text, "C123-1") || !strings.Contains(msg.Text, "transactionRatio") {
		t.Errorf("slack text missing detail: %q", msg.Text)
	}

	var hook webhookMessage
	if err := json.Unmarshal(webhookBody, &hook); err != nil {
		t.Fatalf("webhook body not JSON: %v", err)
	}
	if hook.TransactionID != "C123-1" || hook.FraudProbability != 0.97 {
		t.Errorf("webhook payload = %+v", hook)
	}
	if len(hook.Explanation) != 2 {
		t.Errorf("webhook explanation has %d entries, want 2", len(hook.Explanation))
	}
}

func TestNotifyCountsFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	metrics := &countingMetrics{}
	n := New(failing.URL, "", time.Second, metrics)

	tx, result := flaggedResult()
	outcome := n.Notify(tx, result)
	if outcome[ChannelSlack] {
		t.Error("5xx response must report delivery failure")
	}
	if _, ok := outcome[ChannelWebhook]; ok {
		t.Error("unconfigured channel must not appear in the outcome")
	}
	if metrics.failures != 1 || metrics.sent != 0 {
		t.Errorf("sent/failures = %d/%d, want 0/1", metrics.sent, metrics.failures)
	}
}

func TestNotifierDisabled(t *testing.T) {
	n := New("", "", 0, nil)
	if n.Enabled() {
		t.Error("notifier with no URLs must be disabled")
	}
	tx, result := flaggedResult()
	if outcome := n.Notify(tx, result); len(outcome) != 0 {
		t.Errorf("disabled notifier outcome = %v, want empty", outcome)
	}
}

func TestSlackTextSkipsPlaceholder(t *testing.T) {
	tx, result := flaggedResult()
	result.Explanation = ml.PlaceholderExplanation()
	text := formatSlackText(tx, result)
	if strings.Contains(text, "Top factors") {
		t.Error("placeholder explanation must not render as top factors")
	}
}
