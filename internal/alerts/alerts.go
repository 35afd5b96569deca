// Package alerts delivers fraud notifications to external webhook
// channels. Delivery is best-effort: a failed channel is logged and
// counted, never surfaced to the scoring path.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"trustnet/internal/ml"
	"trustnet/internal/transaction"
)

// Channel names reported in delivery results.
const (
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
)

// NotifierMetrics is the narrow metrics surface the notifier needs.
type NotifierMetrics interface {
	AlertsSentInc()
	NotificationFailuresInc()
}

// Notifier posts alerts for flagged transactions. Channels with an empty
// URL are disabled.
type Notifier struct {
	slackURL   string
	webhookURL string
	rest       *resty.Client
	metrics    NotifierMetrics
}

// New creates a notifier. Either URL may be empty.
func New(slackURL, webhookURL string, timeout time.Duration, metrics NotifierMetrics) *Notifier {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Notifier{slackURL: slackURL, webhookURL: webhookURL, rest: r, metrics: metrics}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return n.slackURL != "" || n.webhookURL != ""
}

type slackMessage struct {
	Text string `json:"text"`
}

type webhookMessage struct {
	TransactionID    string                `json:"transaction_id"`
	Timestamp        time.Time             `json:"timestamp"`
	Type             string                `json:"type"`
	Amount           float64               `json:"amount"`
	NameOrig         string                `json:"nameOrig"`
	NameDest         string                `json:"nameDest"`
	FraudProbability float64               `json:"fraud_probability"`
	Explanation      []ml.ExplanationEntry `json:"explanation,omitempty"`
}

// Notify delivers the alert to every configured channel and returns the
// per-channel delivery outcome. Call it only for flagged transactions.
func (n *Notifier) Notify(tx transaction.Transaction, result *ml.Result) map[string]bool {
	outcome := make(map[string]bool)
	if n.slackURL != "" {
		outcome[ChannelSlack] = n.record(ChannelSlack, result.TransactionID,
			n.post(n.slackURL, slackMessage{Text: formatSlackText(tx, result)}))
	}
	if n.webhookURL != "" {
		outcome[ChannelWebhook] = n.record(ChannelWebhook, result.TransactionID,
			n.post(n.webhookURL, webhookMessage{
				TransactionID:    result.TransactionID,
				Timestamp:        result.Timestamp,
				Type:             tx.Type,
				Amount:           tx.Amount,
				NameOrig:         tx.NameOrig,
				NameDest:         tx.NameDest,
				FraudProbability: result.FraudProbability,
				Explanation:      result.Explanation,
			}))
	}
	return outcome
}

func (n *Notifier) post(url string, body interface{}) error {
	resp, err := n.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook error: status %d", resp.StatusCode())
	}
	return nil
}

func (n *Notifier) record(channel, txID string, err error) bool {
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Str("transaction_id", txID).Msg("alert delivery failed")
		if n.metrics != nil {
			n.metrics.NotificationFailuresInc()
		}
		return false
	}
	if n.metrics != nil {
		n.metrics.AlertsSentInc()
	}
	return true
}

func formatSlackText(tx transaction.Transaction, result *ml.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: Fraud alert %s\n", result.TransactionID)
	fmt.Fprintf(&b, "%s of %.2f from %s to %s\n", tx.Type, tx.Amount, tx.NameOrig, tx.NameDest)
	fmt.Fprintf(&b, "Fraud probability: %.1f%%", result.FraudProbability*100)
	if len(result.Explanation) > 0 && !ml.IsPlaceholder(result.Explanation) {
		b.WriteString("\nTop factors:")
		for i, e := range result.Explanation {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "\n  %s (impact %+.3f)", e.Feature, e.Impact)
		}
	}
	return b.String()
}
