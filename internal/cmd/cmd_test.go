//go:build !integration

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"architect-studio/internal/config"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeStudioAPI answers the handful of routes a 2D render touches.
func fakeStudioAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	r.Post("/generate/2d", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			write(w, map[string]string{"detail": "unauthorized"})
			return
		}
		write(w, map[string]string{"jobId": "job-1", "status": "pending"})
	})
	r.Get("/generate/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"job": model.Job{
			ID:     chi.URLParam(r, "id"),
			Type:   model.JobTypeImage2D,
			Status: model.JobStatusCompleted,
			Output: &model.JobOutput{ResultURLs: []string{"https://cdn.example.com/a.png"}},
		}})
	})
	r.Get("/projects/{p}/rooms/{r}/messages", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"messages": []map[string]string{
			{"id": "m1", "role": "user", "content": "hello", "createdAt": "2026-01-02T10:00:00"},
		}})
	})
	r.Post("/generate/zoning/preflight", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"preflight": map[string]any{
			"missingQuestions":          []string{"What is the lot area?"},
			"predictedComplianceStatus": "needs_info",
			"checks":                    []map[string]any{{"name": "height", "required": 10, "proposed": nil, "status": "needs_info"}},
		}})
	})
	r.Get("/projects/{p}/rooms/{r}", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"room": map[string]any{
			"id":        chi.URLParam(r, "r"),
			"name":      "Den",
			"worldLabs": map[string]string{"worldId": "w1"},
		}})
	})
	r.Get("/generate/3d/export/{p}/{r}", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]string{"exportUrl": "http://" + r.Host + "/files/den.glb", "format": "glb"})
	})
	r.Get("/files/den.glb", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("glTF"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "studio.yaml")
	body := "api:\n  base_url: " + baseURL + "\n" +
		"auth:\n  token: test-token\n" +
		"poll:\n  interval: 10ms\n" +
		"log:\n  level: error\n" +
		"download:\n  dir: " + filepath.Join(dir, "downloads") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.TokenEnv, "")
	t.Setenv("STUDIO_API_URL", "")
	t.Setenv("DATABASE_URL", "")
	// flag values outlive a single Execute
	genPreflight, genDownload, genDetach, exportBundle = false, false, false, false
	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	srv := fakeStudioAPI(t)
	cfg := writeConfig(t, srv.URL)

	t.Run("should submit and wait for the render", func(t *testing.T) {
		out, err := run(t, "generate", "2d", "-c", cfg, "-p", "p1", "-r", "r1", "--prompt", "loft")
		if err != nil {
			t.Fatalf("generate: %v\n%s", err, out)
		}
		for _, want := range []string{"submitted image_2d job job-1", "1 new design image", "https://cdn.example.com/a.png"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("should reject unknown job types", func(t *testing.T) {
		if _, err := run(t, "generate", "hologram", "-c", cfg, "-p", "p1"); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("should require a project", func(t *testing.T) {
		if _, err := run(t, "generate", "zoning", "-c", cfg, "-p", ""); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestGeneratePreflight(t *testing.T) {
	srv := fakeStudioAPI(t)
	cfg := writeConfig(t, srv.URL)
	out, err := run(t, "generate", "zoning", "-c", cfg, "-p", "p1", "-r", "r1", "--preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	for _, want := range []string{"outcome: needs_info", "? What is the lot area?", "height (required 10, proposed ?)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "submitted") {
		t.Errorf("preflight must not submit:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	srv := fakeStudioAPI(t)
	cfg := writeConfig(t, srv.URL)
	out, err := run(t, "export", "-c", cfg, "-p", "p1", "-r", "r1")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	want := filepath.Join(filepath.Dir(cfg), "downloads", "den-scene.glb")
	if !strings.Contains(out, "saved "+want) {
		t.Fatalf("output = %s", out)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "glTF" {
		t.Fatalf("file = %q err=%v", data, err)
	}

	if _, err := run(t, "export", "-c", cfg, "-p", "p1", "-r", ""); err == nil {
		t.Error("expected an error without a room")
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := fakeStudioAPI(t)
	cfg := writeConfig(t, srv.URL)
	out, err := run(t, "history", "-c", cfg, "-p", "p1", "-r", "r1")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	if !strings.Contains(out, "user: hello") {
		t.Errorf("output = %s", out)
	}
}

func TestMaxWait(t *testing.T) {
	got := maxWait(map[string]time.Duration{"model_3d": time.Hour, "zoning": time.Minute, "bogus": time.Second})
	if got[model.JobTypeModel3D] != time.Hour || got[model.JobTypeZoningReport] != time.Minute || len(got) != 2 {
		t.Errorf("maxWait = %v", got)
	}
}

func TestFormatProgress(t *testing.T) {
	p := model.Progress{Percent: 42, Remaining: 90 * time.Second}
	if got := formatProgress(p); !strings.Contains(got, "42%") || !strings.Contains(got, "1m30s left") {
		t.Errorf("formatProgress = %q", got)
	}
	p.Overdue = true
	if got := formatProgress(p); !strings.Contains(got, "longer than usual") {
		t.Errorf("formatProgress overdue = %q", got)
	}
}

func TestPrintNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &printNotifier{out: &buf}
	_ = n.Notify(context.Background(), adapter.Notice{Level: adapter.NoticeError, Message: "3D generation failed"})
	if buf.String() != "! 3D generation failed\n" {
		t.Errorf("printed %q", buf.String())
	}
}
