package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lotworks/dealdocs/internal/model"
)

var servePort int

type prepareRequest struct {
	TenantID string          `json:"tenant_id"`
	Category string          `json:"category"`
	Data     *model.DealData `json:"data"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for document preparation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Bounded worker pool for async preparation.
		workers, workerCtx := errgroup.WithContext(ctx)
		workers.SetLimit(cfg.Server.MaxConcurrency)

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /webhook/prepare", func(w http.ResponseWriter, r *http.Request) {
			req, ok := decodePrepareRequest(w, r)
			if !ok {
				return
			}

			workers.Go(func() error {
				inst, err := env.Manager.PrepareDocument(workerCtx, req.TenantID, req.Category, req.Data)
				if err != nil {
					zap.L().Error("webhook preparation failed",
						zap.String("tenant_id", req.TenantID),
						zap.String("category", req.Category),
						zap.Error(err),
					)
					return nil
				}
				zap.L().Info("webhook preparation complete",
					zap.String("tenant_id", req.TenantID),
					zap.String("category", req.Category),
					zap.String("instance_id", inst.InstanceID),
				)
				return nil
			})

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"status":   "accepted",
				"tenant":   req.TenantID,
				"category": req.Category,
			})
		})

		mux.HandleFunc("POST /validate", func(w http.ResponseWriter, r *http.Request) {
			req, ok := decodePrepareRequest(w, r)
			if !ok {
				return
			}

			res, err := env.Manager.ValidateDeal(r.Context(), req.TenantID, req.Category, req.Data)
			if err != nil {
				zap.L().Error("validation failed",
					zap.String("tenant_id", req.TenantID),
					zap.String("category", req.Category),
					zap.Error(err),
				)
				http.Error(w, `{"error":"validation failed"}`, http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(res)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight preparations drain.
		return workers.Wait()
	},
}

func decodePrepareRequest(w http.ResponseWriter, r *http.Request) (prepareRequest, bool) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return req, false
	}
	if req.TenantID == "" || req.Category == "" {
		http.Error(w, `{"error":"tenant_id and category are required"}`, http.StatusBadRequest)
		return req, false
	}
	if !model.IsCategory(req.Category) {
		http.Error(w, `{"error":"unknown category"}`, http.StatusBadRequest)
		return req, false
	}
	if req.Data == nil {
		http.Error(w, `{"error":"data is required"}`, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
