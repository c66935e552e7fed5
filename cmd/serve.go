package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ptel-geocoder/internal/classify"
	"github.com/sells-group/ptel-geocoder/internal/resilience"
	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

var servePort int

// consensusRequest is a query plus an optional explicit source list.
type consensusRequest struct {
	geocode.Query
	Sources []string `json:"sources,omitempty"`
}

// buildRouter wires the HTTP API over env.
func buildRouter(env *geoEnv, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sources":  env.Sources.List(),
			"breakers": breakerSnapshot(env),
		})
	})

	r.Post("/v1/breakers/{source}/reset", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "source")
		if env.Breakers == nil || !env.Breakers.Reset(id) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("no circuit breaker for source %q", id))
			return
		}
		zap.L().Info("serve: circuit breaker reset", zap.String("source", id))
		respondJSON(w, http.StatusOK, env.Breakers.Snapshot()[id])
	})

	r.Post("/v1/resolve", func(w http.ResponseWriter, req *http.Request) {
		var q geocode.Query
		if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := normalizeQuery(&q); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := env.Cascade.Resolve(req.Context(), q)
		if err != nil {
			zap.L().Error("serve: resolve failed", zap.String("name", q.Name), zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, res)
	})

	r.Post("/v1/consensus", func(w http.ResponseWriter, req *http.Request) {
		var body consensusRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := normalizeQuery(&body.Query); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		adapters := consensusSources(env, classify.Resolve(body.Query), body.Sources)
		if len(adapters) == 0 {
			respondError(w, http.StatusBadRequest, "no enabled sources selected")
			return
		}
		respondJSON(w, http.StatusOK, runConsensus(req.Context(), env.Engine, adapters, body.Query, env.Params, env.Metrics))
	})

	r.Method(http.MethodGet, "/metrics", env.Metrics.Handler())
	return r
}

// normalizeQuery checks the name and canonicalizes an explicit category.
func normalizeQuery(q *geocode.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.Category != "" {
		cat, err := geocode.ParseCategory(string(q.Category))
		if err != nil {
			return err
		}
		q.Category = cat
	}
	return nil
}

// breakerSnapshot reports every source's breaker; sources never called yet
// have no breaker and are omitted.
func breakerSnapshot(env *geoEnv) map[string]resilience.BreakerStatus {
	if env.Breakers == nil {
		return map[string]resilience.BreakerStatus{}
	}
	return env.Breakers.Snapshot()
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolve and consensus HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, buildRouter(env, cfg.Server.CORSOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
