package reconciler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/tagstack/billingcore/pkg/logger"
)

// maxBodyBytes bounds webhook payloads; Stripe events are small.
const maxBodyBytes = int64(65536)

// Handler returns the HTTP handler for POST /api/webhooks/stripe.
//
// The raw body is verified against the endpoint secret before any state
// change. Relevant events are processed synchronously; a handler failure
// answers 400 so Stripe redelivers. Events outside the allow-list are
// acknowledged as ignored with 200, keeping the endpoint compatible with
// event types introduced after this code shipped.
func Handler(endpointSecret string, rec *Reconciler, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read body"})
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("stripe-signature"), endpointSecret)
		if err != nil {
			log.WarnContext(r.Context(), "webhook signature verification failed",
				logger.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid signature"})
			return
		}

		if !Relevant(event.Type) {
			writeJSON(w, http.StatusOK, map[string]any{"ignored": true})
			return
		}

		if err := rec.Process(r.Context(), event); err != nil {
			log.ErrorContext(r.Context(), "billing event processing failed",
				logger.EventID(event.ID),
				logger.EventType(event.Type),
				logger.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"received": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
