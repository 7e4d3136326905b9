// Package admin serves capgate's operator control plane: plugin discovery
// and invocation over HTTP, a live websocket tail of the run event log, a
// post-run PDF report download, and the Prometheus scrape endpoint. It is
// the Go counterpart of the teacher's admin-side web/server router, kept on
// its own mux and its own bind address so it never shares a listener with
// the unauthenticated captive portal (internal/adapters/portal) — a client
// that can reach the portal login page must never also reach plugin
// invocation.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/nexusdevtools/capgate/internal/logging"
	"github.com/nexusdevtools/capgate/internal/reporting"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is capgate's admin HTTP surface.
type Server struct {
	log *logging.Logger

	plugins ports.PluginLoader
	events  ports.EventLog
	rc      *runctx.RunContext
	reports *reporting.Generator

	passwordHash []byte // empty disables auth, matching the unauthenticated dev default

	httpServer *http.Server
}

// New returns an admin Server. basicAuthPassword, if non-empty, is hashed
// with bcrypt and required (with a fixed "admin" username) on every route
// except /metrics.
func New(plugins ports.PluginLoader, events ports.EventLog, rc *runctx.RunContext, reports *reporting.Generator, basicAuthPassword string) (*Server, error) {
	s := &Server{
		log:     logging.Component("admin"),
		plugins: plugins,
		events:  events,
		rc:      rc,
		reports: reports,
	}
	if basicAuthPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(basicAuthPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		s.passwordHash = hash
	}
	return s, nil
}

// Start serves the admin surface on bindIP:bindPort until ctx is canceled.
func (s *Server) Start(ctx context.Context, bindIP string, bindPort int) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/admin/plugins", s.protect(s.handleListPlugins)).Methods(http.MethodGet)
	router.HandleFunc("/admin/plugins/{name}/invoke", s.protect(s.handleInvoke)).Methods(http.MethodPost)
	router.HandleFunc("/admin/runs/{id}/report", s.protect(s.handleReport)).Methods(http.MethodGet)
	router.HandleFunc("/admin/events/ws", s.protect(s.handleEventStream))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bindIP, bindPort),
		Handler:           otelhttp.NewHandler(router, "admin"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("admin server shutdown: %v", err)
		}
	}()

	s.log.Info("admin surface listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// protect wraps h with HTTP Basic auth when a password was configured, and
// never guards /metrics (callers register that route separately).
func (s *Server) protect(h http.HandlerFunc) http.HandlerFunc {
	if len(s.passwordHash) == 0 {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != "admin" || bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="capgate admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	infos := s.plugins.List()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var args map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&args)
	}

	ok, err := s.plugins.Invoke(r.Context(), name, s.rc, args)
	resp := struct {
		Accepted bool   `json:"accepted"`
		Error    string `json:"error,omitempty"`
	}{Accepted: ok}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	workflow := r.URL.Query().Get("workflow")

	report, err := s.reports.Generate(r.Context(), runID, workflow, "admin")
	if err != nil {
		http.Error(w, fmt.Sprintf("generate report: %v", err), http.StatusInternalServerError)
		return
	}

	pdf, err := reporting.NewPDFExporter().ExportRunReport(report)
	if err != nil {
		http.Error(w, fmt.Sprintf("export report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, runID))
	w.Write(pdf)
}

// handleEventStream upgrades to a websocket connection and pushes every
// event-log entry for the run named by the "run_id" query parameter as it
// is appended, polling Since the same way internal/grpcapi's StreamEvents
// does over gRPC.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		http.Error(w, "run_id query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var mu sync.Mutex
	afterID := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := s.events.Since(ctx, runID, afterID)
			if err != nil {
				s.log.Warn("event tail fetch failed: %v", err)
				return
			}
			mu.Lock()
			for _, ev := range events {
				if writeErr := conn.WriteJSON(toWireEvent(ev)); writeErr != nil {
					mu.Unlock()
					return
				}
				afterID = ev.ID
			}
			mu.Unlock()
		}
	}
}

// wireEvent is the JSON shape pushed to admin websocket clients.
type wireEvent struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func toWireEvent(ev domain.Event) wireEvent {
	return wireEvent{
		ID:        ev.ID,
		RunID:     ev.RunID,
		Time:      ev.Time,
		Component: ev.Component,
		Kind:      ev.Kind,
		Message:   ev.Message,
		Fields:    ev.Fields,
	}
}
