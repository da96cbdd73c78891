package bot

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shifohub/patient-comms/internal/observability/metrics"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type secretVerifier interface {
	VerifyWebhookSecret(header string) error
}

// Webhook receives Bot API update callbacks. It acknowledges every
// well-formed request; delivery retries are the platform's job only for
// hard failures.
type Webhook struct {
	handler *Handler
	secrets secretVerifier
	metrics *metrics.CommsMetrics
	logger  *logging.Logger
}

// NewWebhook builds the webhook endpoint.
func NewWebhook(handler *Handler, secrets secretVerifier, m *metrics.CommsMetrics, logger *logging.Logger) *Webhook {
	if handler == nil || secrets == nil {
		panic("bot: missing webhook dependency")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Webhook{handler: handler, secrets: secrets, metrics: m, logger: logger}
}

// ServeHTTP handles POST /webhooks/telegram.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		wh.metrics.ObserveWebhookLatency(time.Since(start).Seconds())
	}()

	if err := wh.secrets.VerifyWebhookSecret(r.Header.Get("X-Telegram-Bot-Api-Secret-Token")); err != nil {
		wh.logger.Warn("webhook secret mismatch", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		wh.logger.Warn("webhook body decode failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := wh.handler.HandleUpdate(r.Context(), &update); err != nil {
		wh.logger.Error("update handling failed", "error", err, "update_id", update.UpdateID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
