// Package httpapi is the HTTP surface binding the daemon's route table
// to the core components, built with github.com/go-chi/chi/v5 the way
// the pack's marmos91-dittofs repo builds its control-plane API.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gravwell/x32mgr/internal/bulk"
	"github.com/gravwell/x32mgr/internal/discover"
	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/exporter"
	"github.com/gravwell/x32mgr/internal/importer"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/store"
	"github.com/gravwell/x32mgr/internal/transport"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// Session is the subset of *transport.Session the HTTP layer drives
// directly (connect/health); everything else goes through Store/Correlator.
type Session interface {
	Open(localPort int) error
	State() transport.State
}

// Correlator is the blocking request surface used for the top-level
// full-backup export and discovery-adjacent identity probes.
type Correlator interface {
	bulk.Requester
}

// Sender is the fire-and-forget surface used by import.
type Sender interface {
	Send(address string, args []osc.Arg) error
}

// Server wires the HTTP route table to the core components.
type Server struct {
	log     *xlog.Logger
	bus     *eventbus.Bus
	session Session
	corr    Correlator
	snd     Sender
	store   *store.Store

	listenLocalPort int
	discoverPort    int
	discoverWindow  time.Duration
}

// New builds the chi router binding every route to its handler.
func New(log *xlog.Logger, bus *eventbus.Bus, session Session, corr Correlator, snd Sender, st *store.Store, listenLocalPort, discoverPort int, discoverWindow time.Duration) http.Handler {
	s := &Server{
		log: log, bus: bus, session: session, corr: corr, snd: snd, store: st,
		listenLocalPort: listenLocalPort, discoverPort: discoverPort, discoverWindow: discoverWindow,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)

	r.Get("/scenes", s.handleListScenes)
	r.Get("/scenes/{id}", s.handleGetScene)
	r.Post("/scenes", s.handleSaveScene)
	r.Delete("/scenes/{id}", s.handleDeleteScene)
	r.Post("/scenes/{id}/load", s.handleLoadScene)
	r.Post("/scenes/{id}/backup", s.handleBackupScene)

	r.Get("/backup", s.handleListBackupFiles)
	r.Post("/backup/full", s.handleFullBackup)
	r.Post("/backup/{filename}/load", s.handleLoadBackupFile)
	r.Delete("/backup/{filename}", s.handleDeleteBackupFile)

	r.Get("/x32/discover", s.handleDiscover)
	r.Post("/x32/connect", s.handleConnect)

	return r
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// statusForErr maps an error Kind to an HTTP status code:
// never echo filesystem paths or stack detail, only the kind's message.
func statusForErr(err error) (int, string) {
	switch errs.KindOf(err) {
	case errs.PathEscape, errs.InvalidFilename:
		return http.StatusBadRequest, "Invalid filename"
	case errs.NotFound:
		return http.StatusNotFound, "not found"
	case errs.Unsupported:
		return http.StatusBadRequest, "unsupported operation"
	case errs.Timeout:
		return http.StatusGatewayTimeout, "timed out"
	case errs.SessionLost, errs.TransportError:
		return http.StatusBadGateway, "session lost"
	case errs.LoadUncertain:
		return http.StatusOK, "load uncertain"
	case errs.Canceled:
		return http.StatusRequestTimeout, "canceled"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := transport.Disconnected
	if s.session != nil {
		state = s.session.State()
	}
	writeOK(w, map[string]string{"state": state.String()})
}

func kindFromQuery(r *http.Request) store.Kind {
	if r.URL.Query().Get("kind") == string(store.KindSnippet) {
		return store.KindSnippet
	}
	return store.KindScene
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), kindFromQuery(r))
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, records)
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), kindFromQuery(r), id)
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, rec)
}

type saveSceneRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	var req saveSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.store.Save(kindFromQuery(r), req.Name, req.Notes)
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, rec)
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), kindFromQuery(r), id); err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleLoadScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Load(r.Context(), kindFromQuery(r), id); err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleBackupScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.Backup(r.Context(), kindFromQuery(r), id)
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, rec)
}

func (s *Server) handleListBackupFiles(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), store.KindScene)
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, records)
}

func (s *Server) handleFullBackup(w http.ResponseWriter, r *http.Request) {
	buf, summary, err := exporter.ExportConsoleBackup(r.Context(), s.corr, "full-backup", "", bulk.DefaultPolicy(), nil)
	if err != nil && errs.KindOf(err) != errs.Timeout {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Parameter-Count", strconv.Itoa(summary.ParameterCount))
	w.Header().Set("X-Error-Count", strconv.Itoa(summary.ErrorCount))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

func (s *Server) handleLoadBackupFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	data, err := s.store.ReadBackupFile(filename)
	if err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	_, err = importer.Import(r.Context(), s.snd, s.corr, s.bus, data, "", importer.DefaultPolicy(), nil)
	if err != nil && errs.KindOf(err) != errs.LoadUncertain {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleDeleteBackupFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	id := "local-" + strings.TrimSuffix(strings.TrimSuffix(filename, ".scn"), ".bak")
	if err := s.store.Delete(r.Context(), store.KindScene, id); err != nil {
		status, msg := statusForErr(err)
		writeErr(w, status, msg)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	subnet := r.URL.Query().Get("subnet")
	if subnet == "" {
		writeErr(w, http.StatusBadRequest, "subnet query parameter is required")
		return
	}
	consoles, err := discover.Sweep(subnet, s.discoverPort, s.discoverWindow)
	if err != nil {
		writeErr(w, http.StatusBadGateway, "discovery failed")
		return
	}
	writeOK(w, consoles)
}

type connectRequest struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.session == nil {
		writeErr(w, http.StatusInternalServerError, "no session configured")
		return
	}
	if err := s.session.Open(s.listenLocalPort); err != nil {
		writeErr(w, http.StatusBadGateway, "failed to open session")
		return
	}
	writeOK(w, map[string]string{"state": s.session.State().String()})
}
