package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/model"
	"github.com/casefold/matterflow/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Orch),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the session API. Dispatch runs asynchronously: the phase
// work can take minutes, so the handler accepts and returns.
func newRouter(orch *workflow.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Jurisdiction string   `json:"jurisdiction"`
				Parties      []string `json:"parties"`
				Facts        []string `json:"facts"`
				Issues       []string `json:"issues"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Jurisdiction == "" {
				writeError(w, http.StatusBadRequest, "jurisdiction is required")
				return
			}

			id, err := orch.StartSession(req.Context(), map[string]string{
				"jurisdiction": body.Jurisdiction,
				"parties":      strings.Join(body.Parties, ", "),
				"facts":        strings.Join(body.Facts, "\n"),
				"issues":       strings.Join(body.Issues, ", "),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, orch.Sessions())
		})

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				s, err := orch.Session(chi.URLParam(req, "sessionID"))
				if err != nil {
					writeWorkflowError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, s)
			})

			r.Post("/dispatch", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "sessionID")
				if _, err := orch.Session(id); err != nil {
					writeWorkflowError(w, err)
					return
				}
				go func() {
					if err := orch.DispatchPhaseTasks(context.Background(), id); err != nil {
						zap.L().Error("dispatch failed",
							zap.String("session_id", id),
							zap.Error(err),
						)
					}
				}()
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatching"})
			})

			r.Post("/approvals/{phase}", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "sessionID")
				phase := model.Phase(chi.URLParam(req, "phase"))
				if err := orch.GrantApproval(id, phase); err != nil {
					writeWorkflowError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
			})

			r.Post("/advance", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					From string `json:"from"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeError(w, http.StatusBadRequest, "invalid request body")
					return
				}
				id := chi.URLParam(req, "sessionID")
				if err := orch.AdvancePhase(req.Context(), id, model.Phase(body.From)); err != nil {
					writeWorkflowError(w, err)
					return
				}
				s, err := orch.Session(id)
				if err != nil {
					writeWorkflowError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"current_phase": string(s.CurrentPhase)})
			})

			r.Post("/cancel", func(w http.ResponseWriter, req *http.Request) {
				if err := orch.CancelSession(chi.URLParam(req, "sessionID")); err != nil {
					writeWorkflowError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeWorkflowError maps orchestrator errors to status codes: unknown
// sessions are 404, gate refusals 409, anything else 500.
func writeWorkflowError(w http.ResponseWriter, err error) {
	var notFound *workflow.SessionNotFoundError
	var notReady *workflow.PhaseNotReadyError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notReady):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
