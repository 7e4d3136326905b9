package admin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/nexusdevtools/capgate/internal/eventlog"
	"github.com/nexusdevtools/capgate/internal/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	infos     []ports.PluginInfo
	lastName  string
	lastArgs  map[string]string
	returnOK  bool
	returnErr error
}

func (f *fakeLoader) Discover(ctx context.Context) error { return nil }
func (f *fakeLoader) List() []ports.PluginInfo           { return f.infos }
func (f *fakeLoader) Invoke(ctx context.Context, name string, rc ports.RunContext, args map[string]string) (bool, error) {
	f.lastName, f.lastArgs = name, args
	return f.returnOK, f.returnErr
}

func newTestServer(t *testing.T, loader *fakeLoader, password string) (*Server, *eventlog.Log) {
	t.Helper()
	log, err := eventlog.New("")
	require.NoError(t, err)
	rc := runctx.New()
	srv, err := New(loader, log, rc, reporting.NewGenerator(log), password)
	require.NoError(t, err)
	return srv, log
}

func TestHandleListPluginsReturnsDiscoveredPlugins(t *testing.T) {
	loader := &fakeLoader{infos: []ports.PluginInfo{{Name: "evil_twin", Description: "d", EntryPoint: "run"}}}
	srv, _ := newTestServer(t, loader, "")

	router := mux.NewRouter()
	router.HandleFunc("/admin/plugins", srv.protect(srv.handleListPlugins))

	req := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []ports.PluginInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, loader.infos, got)
}

func TestHandleInvokeRoundTripsArgs(t *testing.T) {
	loader := &fakeLoader{returnOK: true}
	srv, _ := newTestServer(t, loader, "")

	router := mux.NewRouter()
	router.HandleFunc("/admin/plugins/{name}/invoke", srv.protect(srv.handleInvoke)).Methods(http.MethodPost)

	body := `{"bssid": "AA:BB:CC:DD:EE:FF"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/plugins/wifi_crack_automation/invoke", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wifi_crack_automation", loader.lastName)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", loader.lastArgs["bssid"])
}

func TestProtectRejectsWrongCredentials(t *testing.T) {
	loader := &fakeLoader{infos: []ports.PluginInfo{}}
	srv, _ := newTestServer(t, loader, "secret")

	handler := srv.protect(srv.handleListPlugins)

	req := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	req2.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	rec2 := httptest.NewRecorder()
	handler(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestHandleReportExportsPDFForRecordedRun(t *testing.T) {
	loader := &fakeLoader{}
	srv, log := newTestServer(t, loader, "")

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, log.Append(ctx, domain.Event{RunID: "run-1", Kind: domain.EventKindPhaseEnter, Message: "P1", Time: now}))
	require.NoError(t, log.Append(ctx, domain.Event{RunID: "run-1", Kind: domain.EventKindWorkflowComplete, Message: "done", Time: now.Add(time.Second)}))

	router := mux.NewRouter()
	router.HandleFunc("/admin/runs/{id}/report", srv.protect(srv.handleReport))

	req := httptest.NewRequest(http.MethodGet, "/admin/runs/run-1/report?workflow=wifi_crack_automation", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, len(rec.Body.Bytes()) > 4 && string(rec.Body.Bytes()[:4]) == "%PDF")
}
