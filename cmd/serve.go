package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bondline/skiptrace/internal/auth"
	"github.com/bondline/skiptrace/internal/enrich"
	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/monitoring"
	"github.com/bondline/skiptrace/internal/suggest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Service, env.Metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()

		zap.L().Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newRouter(svc *enrich.Service, metrics *monitoring.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Collect())
	})

	r.Get("/providers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Providers())
	})

	r.Route("/subjects/{subjectID}", func(r chi.Router) {
		r.Get("/enrichment", handleGetEnrichment(svc))
		r.Post("/enrichment/run", handleRunEnrichment(svc))
		r.Post("/enrichment/select", handleSelectCandidate(svc))

		r.Get("/parties", handleListParties(svc))
		r.Post("/parties/{partyID}/pull", handlePullParty(svc))
		r.Put("/parties/{partyID}/relationship", handleSetRelationship(svc))

		r.Get("/suggestions", handleSuggestions(svc))
		r.Post("/suggestions/{field}/apply", handleApplySuggestion(svc))
	})

	return r
}

func handleGetEnrichment(svc *enrich.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetEnrichment(r.Context(), chi.URLParam(r, "subjectID"), r.URL.Query().Get("provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			State string `json:"state"`
			enrich.EnrichmentView
		}{string(svc.State(view.Enrichment)), view})
	}
}

func handleRunEnrichment(svc *enrich.Service) http.HandlerFunc {
	type request struct {
		Provider string `json:"provider,omitempty"`
		Force    bool   `json:"force,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := svc.RunEnrichment(r.Context(), actorFromRequest(r), chi.URLParam(r, "subjectID"), req.Provider, enrich.RunOptions{Force: req.Force})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleSelectCandidate(svc *enrich.Service) http.HandlerFunc {
	type request struct {
		Provider string `json:"provider,omitempty"`
		RecordID string `json:"record_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		rec, err := svc.SelectCandidate(r.Context(), actorFromRequest(r), chi.URLParam(r, "subjectID"), req.Provider, req.RecordID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListParties(svc *enrich.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parties, err := svc.Parties(r.Context(), chi.URLParam(r, "subjectID"), suggest.Order(r.URL.Query().Get("order")))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, parties)
	}
}

func handlePullParty(svc *enrich.Service) http.HandlerFunc {
	type request struct {
		Force bool `json:"force,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		party, err := svc.PullRelatedParty(r.Context(), actorFromRequest(r),
			chi.URLParam(r, "subjectID"), chi.URLParam(r, "partyID"), enrich.PullOptions{Force: req.Force})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, party)
	}
}

func handleSetRelationship(svc *enrich.Service) http.HandlerFunc {
	type request struct {
		RelationType *model.RelationType `json:"relation_type,omitempty"`
		Label        *string             `json:"label,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		party, err := svc.SetRelationship(r.Context(), actorFromRequest(r),
			chi.URLParam(r, "subjectID"), chi.URLParam(r, "partyID"), req.RelationType, req.Label)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, party)
	}
}

func handleSuggestions(svc *enrich.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := svc.Suggestions(r.Context(), chi.URLParam(r, "subjectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

func handleApplySuggestion(svc *enrich.Service) http.HandlerFunc {
	type request struct {
		Confirm bool `json:"confirm,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		sug, err := svc.ApplySuggestion(r.Context(), actorFromRequest(r),
			chi.URLParam(r, "subjectID"), model.FactKind(chi.URLParam(r, "field")), req.Confirm)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sug)
	}
}

// actorFromRequest reads the caller identity from headers. The API
// trusts its deployment perimeter for authentication; roles gate what
// the engine will do.
func actorFromRequest(r *http.Request) enrich.Actor {
	actor := enrich.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Role: auth.Role(r.Header.Get("X-Actor-Role")),
	}
	if actor.ID == "" {
		actor.ID = "api"
	}
	if actor.Role == "" {
		actor.Role = auth.RoleAgent
	}
	return actor
}

// decodeBody parses an optional JSON body. An empty body leaves dst at
// its zero value.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &enrich.ValidationError{Reason: "malformed JSON body"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

// writeError maps engine error types onto HTTP statuses. Cooldown
// rejections carry a Retry-After header with the remaining seconds.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		validationErr   *enrich.ValidationError
		permissionErr   *enrich.PermissionError
		cooldownErr     *enrich.CooldownError
		notFoundErr     *enrich.NotFoundError
		confirmationErr *enrich.ConfirmationRequiredError
		providerErr     *enrich.ProviderError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &permissionErr):
		status = http.StatusForbidden
	case errors.As(err, &cooldownErr):
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.FormatInt(cooldownErr.ETASeconds, 10))
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &confirmationErr):
		status = http.StatusConflict
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
