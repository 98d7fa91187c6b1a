package controller

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/orchestrator"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/webhook"
)

type WebhookController struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       zerolog.Logger
}

// Receive ingests a provider delivery. Only authentication failures are
// answered with an error status; every other outcome is acknowledged with
// 200 so providers do not retry, and is recorded in the webhook log.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	platform := model.Platform(chi.URLParam(r, "platform"))
	if !platform.Valid() {
		handler.WriteError(w, c.Logger, fmt.Errorf("%w: %s", appErrors.ErrUnsupported, platform))
		return
	}

	// an oversized or broken body still gets its audit log entry
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, handler.MaxBodyBytes))

	res, err := c.Orchestrator.HandleWebhook(r.Context(), webhook.Request{
		Platform: platform,
		Account:  chi.URLParam(r, "account"),
		Body:     body,
		Headers:  r.Header,
		ReadErr:  readErr,
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrWebhookAuthFailed) {
			handler.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}
