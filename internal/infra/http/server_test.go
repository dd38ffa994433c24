//go:build !integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"architect-studio/internal/domain/model"
)

type staticSource []*model.Workspace

func (s staticSource) Workspaces() []*model.Workspace { return s }

func newTestServer() *Server {
	room := model.NewWorkspace(model.WorkspaceRef{ProjectID: "p1", RoomID: "r1"})
	room.AppendImages("https://cdn/a.png", "https://cdn/b.png")
	room.Track(model.TrackedJob{ID: "j1", Type: model.JobTypeModel3D, Workspace: room.Ref})
	project := model.NewWorkspace(model.WorkspaceRef{ProjectID: "p1"})
	return NewServer(staticSource{room, project}, nil)
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := do(t, newTestServer(), "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}

func TestServer_Metrics(t *testing.T) {
	rec := do(t, newTestServer(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in metrics output")
	}
}

func TestServer_Workspaces(t *testing.T) {
	s := newTestServer()

	t.Run("should list workspaces sorted by key", func(t *testing.T) {
		rec := do(t, s, "/api/v1/workspaces")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var body struct {
			Items []workspaceSummary `json:"items"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 2 {
			t.Fatalf("items = %+v", body.Items)
		}
		if body.Items[0].Key != "p1/_project" || body.Items[1].Key != "p1/r1" {
			t.Errorf("order = %s, %s", body.Items[0].Key, body.Items[1].Key)
		}
		room := body.Items[1]
		if room.Pipeline != model.PipelineGenerating3D.String() || room.Images != 2 || room.Job == nil || room.Job.ID != "j1" {
			t.Errorf("room summary = %+v", room)
		}
	})

	t.Run("should return the full state of a room", func(t *testing.T) {
		rec := do(t, s, "/api/v1/workspaces/p1/r1")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var st model.WorkspaceState
		if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.RoomID != "r1" || len(st.Images) != 2 {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("should resolve project scope without a room", func(t *testing.T) {
		if rec := do(t, s, "/api/v1/workspaces/p1"); rec.Code != http.StatusOK {
			t.Errorf("want 200, got %d", rec.Code)
		}
	})

	t.Run("should 404 unknown workspaces with a detail body", func(t *testing.T) {
		rec := do(t, s, "/api/v1/workspaces/p1/nope")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"detail"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}
