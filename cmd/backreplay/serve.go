package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/engine"
	"github.com/riverglen/backreplay/internal/logger"
	"github.com/riverglen/backreplay/internal/telemetry"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an embedded REST server exposing /run, /health, and /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		eng := engine.New(store, config.DataDir())

		mux := http.NewServeMux()
		mux.HandleFunc("/run", handleRun(eng))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", telemetry.Handler())

		logger.Infof("starting REST server on %s", listenAddr)
		return http.ListenAndServe(listenAddr, mux)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "port", ":8080", "listen address")
	serveCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "use the SQL store backed by this SQLite file instead of per-symbol CSVs")
}

func handleRun(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := config.Defaults()
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload = config.ApplyDefaults(payload)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
		defer cancel()

		res, err := eng.Run(ctx, payload)
		if err != nil {
			logger.Errorf("run failed: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}
