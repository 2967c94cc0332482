package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter assembles the chi router carrying the transaction surface and
// the WebSocket broadcast stream.
func NewRouter(txCtrl *TransactionController, wsHub *WebSocketHub, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(log))

	r.Post("/transaction", txCtrl.Create)
	r.Get("/transaction/{id}", txCtrl.Get)
	r.Delete("/transaction/{id}", txCtrl.Cancel)
	r.Post("/transaction/{id}/confirm", txCtrl.Confirm)
	r.Post("/transaction/{id}/accept-bill", txCtrl.AcceptBill)
	r.Get("/ws", wsHub.ServeHTTP)

	r.Mount("/", adminRouter(log))
	return r
}

// requestLogger logs method, path, and elapsed time for every request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method": r.Method, "path": r.URL.Path, "elapsed": time.Since(start),
			}).Info("request")
		})
	}
}

// adminRouter holds the legacy-style /healthz and /status routes on a
// gorilla/mux table mounted alongside the chi routes, kept on mux so the
// operator tooling that predates the chi migration keeps working.
func adminRouter(log *logrus.Logger) *mux.Router {
	m := mux.NewRouter()
	m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	m.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	}).Methods(http.MethodGet)
	return m
}
