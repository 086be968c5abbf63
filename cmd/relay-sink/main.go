// Command relay-sink is a stand-in for the downstream service the HTTP
// relay posts to. It logs every record it receives.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sensorlog/internal/logging"
)

func main() {
	addr := flag.String("addr", ":9001", "listen address")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.NewLogger(*level)
	logger.Info("relay sink listening", "addr", *addr)
	if err := newServer(*addr, logger).ListenAndServe(); err != nil {
		logger.Error("relay sink stopped", "err", err)
		os.Exit(1)
	}
}

func newServer(addr string, logger *slog.Logger) *http.Server {
	return &http.Server{Addr: addr, Handler: newHandler(logger), ReadHeaderTimeout: 10 * time.Second}
}

func newHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", receive(logger, "event"))
	mux.HandleFunc("/values", receive(logger, "values"))
	return mux
}

func receive(logger *slog.Logger, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Warn("invalid record", "kind", kind, "err", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		logger.Info("record received", "kind", kind, "device", payload["device_name"], "payload", payload)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}
}
