package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shifohub/patient-comms/internal/bot"
	httpmiddleware "github.com/shifohub/patient-comms/internal/http/middleware"
	"github.com/shifohub/patient-comms/internal/otp"
	"github.com/shifohub/patient-comms/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhook            *bot.Webhook
	OTPHandler         *otp.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Webhook != nil {
		r.Post("/webhooks/telegram", cfg.Webhook.ServeHTTP)
	}

	if cfg.OTPHandler != nil {
		r.Route("/v1/auth/otp", func(auth chi.Router) {
			auth.Post("/request", cfg.OTPHandler.RequestOTP)
			auth.Post("/verify", cfg.OTPHandler.VerifyOTP)
		})
	}

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
