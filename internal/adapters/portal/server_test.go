package portal

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleIndexRendersSSID(t *testing.T) {
	s := New()
	s.ssid = "Free WiFi"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.handleIndex(w, req)
	assert.Contains(t, w.Body.String(), "Free WiFi")
}

func TestHandleLoginEmitsCredentialEvent(t *testing.T) {
	s := New()
	s.ssid = "Free WiFi"
	s.events = make(chan domain.Event, 1)

	form := url.Values{}
	form.Set("password", "hunter2")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.handleLogin(w, req)

	select {
	case ev := <-s.events:
		assert.Equal(t, "hunter2", ev.Fields["password"])
		assert.Equal(t, domain.EventKindCredentialCaptured, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected credential event")
	}
}

func TestHandleLoginRejectsGet(t *testing.T) {
	s := New()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	w := httptest.NewRecorder()
	s.handleLogin(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
