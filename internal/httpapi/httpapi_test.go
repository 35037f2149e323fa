package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/x32mgr/internal/correlator"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/store"
	"github.com/gravwell/x32mgr/internal/transport"
	"github.com/gravwell/x32mgr/internal/transport/mock"
	"github.com/gravwell/x32mgr/internal/xlog"
)

type fakeSession struct {
	state transport.State
}

func (f *fakeSession) Open(localPort int) error { f.state = transport.Connected; return nil }
func (f *fakeSession) State() transport.State   { return f.state }

func newTestServer(t *testing.T) (http.Handler, *mock.Transport, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New()
	tr := mock.New(bus)
	c := correlator.New(xlog.NewDiscard(), bus, tr)
	tr.SetReply("/xinfo", mock.Reply{Args: []osc.Arg{
		osc.String("10.0.0.2"), osc.String("FOH"), osc.String("X32"), osc.String("4.08"),
	}})
	st, err := store.New(xlog.NewDiscard(), bus, c, tr, dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sess := &fakeSession{state: transport.ModeMock}
	handler := New(xlog.NewDiscard(), bus, sess, c, tr, st, 0, 10023, time.Second)
	return handler, tr, st
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestHealthReportsSessionState(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.True(t, env.Success)
}

func TestListScenesEmptySandbox(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/scenes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.True(t, env.Success)
}

func TestSaveSceneThenGetByID(t *testing.T) {
	h, _, _ := newTestServer(t)

	body := strings.NewReader(`{"name":"foh","notes":"day one"}`)
	req := httptest.NewRequest(http.MethodPost, "/scenes", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/scenes/local-foh", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	env := decodeEnvelope(t, rec2.Body.Bytes())
	require.True(t, env.Success)
}

func TestGetMissingSceneIs404(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/scenes/local-nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.False(t, env.Success)
}

func TestLoadBackupFileRejectsEscapingFilename(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/backup/../../etc/passwd/load", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	// as with the sibling delete route, chi may collapse ".." before
	// routing reaches the handler; either outcome is fine as long as
	// the file is never read.
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestLoadBackupFileMissingReturns404(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/backup/nope.bak/load", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadBackupFileReplaysThroughImporter(t *testing.T) {
	h, _, _ := newTestServer(t)

	saveBody := strings.NewReader(`{"name":"foh","notes":""}`)
	saveReq := httptest.NewRequest(http.MethodPost, "/scenes", saveBody)
	saveRec := httptest.NewRecorder()
	h.ServeHTTP(saveRec, saveReq)
	require.Equal(t, http.StatusOK, saveRec.Code)

	req := httptest.NewRequest(http.MethodPost, "/backup/foh.scn/load", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.True(t, env.Success)
}

func TestDeleteBackupFileRejectsEscapingFilename(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/backup/../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	// chi itself collapses ".." in the path before routing reaches our
	// handler-level guard in some configurations; either a 400 from our
	// sanitizer or a 404 from no matching route is an acceptable outcome,
	// but a 200 is never acceptable.
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestDiscoverRequiresSubnetParam(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/x32/discover", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectOpensSession(t *testing.T) {
	h, _, _ := newTestServer(t)
	body := strings.NewReader(`{"ip":"10.0.0.2","port":10023}`)
	req := httptest.NewRequest(http.MethodPost, "/x32/connect", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.True(t, env.Success)
}
