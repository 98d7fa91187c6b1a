package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/middleware"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/orchestrator"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/queue"
)

// NewRouter mounts every HTTP route of the orchestrator. Channel events
// posted over HTTP are published to q.
func NewRouter(o *orchestrator.Orchestrator, q queue.Queue, eventToken string, logger zerolog.Logger) *chi.Mux {
	campaigns := &CampaignController{CampaignService: o.Campaigns, Logger: logger}
	rules := &RuleController{RuleService: o.Rules, Logger: logger}
	channels := &ChannelController{
		Registry:   o.Registry,
		Limiter:    o.Limiter,
		Queue:      q,
		EventToken: eventToken,
		Logger:     logger,
	}
	webhooks := &WebhookController{Orchestrator: o, Logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// provider and transport callbacks authenticate themselves
	r.Post("/webhooks/{platform}", webhooks.Receive)
	r.Post("/webhooks/{platform}/{account}", webhooks.Receive)
	r.Post("/channels/events", channels.PostEvent)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", campaigns.CreateCampaign)
			r.Get("/", campaigns.ListCampaigns)
			r.Get("/{id}", campaigns.GetCampaignDetails)
			r.Delete("/{id}", campaigns.DeleteCampaign)
			r.Post("/{id}/start", campaigns.StartCampaign)
			r.Post("/{id}/pause", campaigns.PauseCampaign)
			r.Post("/{id}/resume", campaigns.ResumeCampaign)
			r.Post("/{id}/cancel", campaigns.CancelCampaign)
		})

		r.Get("/channels/{channelID}/rate-limit", channels.GetRateLimit)
		r.Post("/channels/{channelID}/rules", rules.CreateRule)
		r.Get("/channels/{channelID}/rules", rules.ListRules)

		r.Put("/rules/{id}", rules.UpdateRule)
		r.Delete("/rules/{id}", rules.DeleteRule)
		r.Post("/rules/{id}/toggle", rules.ToggleRule)
	})

	return r
}
