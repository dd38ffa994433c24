// File: internal/infra/http/server.go
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"architect-studio/internal/domain/model"
)

// WorkspaceSource is the read side of the studio the status server needs.
type WorkspaceSource interface {
	Workspaces() []*model.Workspace
}

// Server exposes health, Prometheus metrics and a read-only view of the
// workspaces a long-running studio process is observing.
type Server struct {
	src    WorkspaceSource
	log    *zerolog.Logger
	router chi.Router
	server *http.Server
}

func NewServer(src WorkspaceSource, log *zerolog.Logger) *Server {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	s := &Server{src: src, log: log}

	r := chi.NewRouter()
	r.Use(TraceID(), Recover(log), RequestLog(log), Timeout(10*time.Second))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1/workspaces", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{projectID}", s.handleGet)
		r.Get("/{projectID}/{roomID}", s.handleGet)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves until Shutdown. It returns once the
// listener is bound so callers can report the address.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("status server stopped")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return ln.Addr(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type workspaceSummary struct {
	Key       string            `json:"key"`
	ProjectID string            `json:"projectId"`
	RoomID    string            `json:"roomId,omitempty"`
	Pipeline  string            `json:"pipeline"`
	Job       *model.TrackedJob `json:"job,omitempty"`
	Progress  *model.Progress   `json:"progress,omitempty"`
	Images    int               `json:"images"`
	Messages  int               `json:"messages"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items := make([]workspaceSummary, 0)
	for _, ws := range s.src.Workspaces() {
		st := ws.State()
		items = append(items, workspaceSummary{
			Key:       st.Key,
			ProjectID: st.ProjectID,
			RoomID:    st.RoomID,
			Pipeline:  st.Pipeline,
			Job:       st.Job,
			Progress:  st.Progress,
			Images:    len(st.Images),
			Messages:  len(st.Messages),
			UpdatedAt: st.UpdatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ref := model.WorkspaceRef{
		ProjectID: chi.URLParam(r, "projectID"),
		RoomID:    chi.URLParam(r, "roomID"),
	}
	key := ref.Key()
	for _, ws := range s.src.Workspaces() {
		if ws.Ref.Key() == key {
			writeJSON(w, http.StatusOK, ws.State())
			return
		}
	}
	writeError(w, http.StatusNotFound, "workspace not found")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}
