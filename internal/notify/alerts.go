package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/shifohub/patient-comms/pkg/logging"
)

// Alerter emails the on-call address when background jobs hit failures.
// With no sender or address configured it logs and drops the alert.
type Alerter struct {
	sender EmailSender
	to     string
	logger *logging.Logger
}

// NewAlerter builds an alerter. sender may be nil.
func NewAlerter(sender EmailSender, to string, logger *logging.Logger) *Alerter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Alerter{sender: sender, to: to, logger: logger}
}

// DeliveryFailures reports a batch of failed outbound deliveries.
func (a *Alerter) DeliveryFailures(ctx context.Context, failed []string) {
	if len(failed) == 0 {
		return
	}
	subject := fmt.Sprintf("outbound delivery: %d failure(s)", len(failed))
	body := "The drain run could not deliver the following messages:\n\n" +
		strings.Join(failed, "\n") +
		"\n\nCheck the outbound table for error details."
	a.send(ctx, subject, body)
}

func (a *Alerter) send(ctx context.Context, subject, body string) {
	if a.sender == nil || a.to == "" {
		a.logger.Warn("ops alert dropped, email not configured", "subject", subject)
		return
	}
	if err := a.sender.Send(ctx, EmailMessage{To: a.to, Subject: subject, Body: body}); err != nil {
		a.logger.Error("ops alert send failed", "error", err, "subject", subject)
	}
}
