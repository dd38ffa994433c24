//go:build !integration

package model

import (
	"errors"
	"sync"
	"testing"

	"architect-studio/internal/domain"
)

// --- Job Tests ---

func TestJobType(t *testing.T) {
	t.Run("should accept wire names and CLI aliases", func(t *testing.T) {
		cases := map[string]JobType{
			"image_2d":       JobTypeImage2D,
			"2D":             JobTypeImage2D,
			"3d":             JobTypeModel3D,
			"artifact":       JobTypeArtifact,
			"zoning":         JobTypeZoningReport,
			"technical-info": JobTypeTechnicalInfoReport,
		}
		for in, want := range cases {
			got, ok := ParseJobType(in)
			if !ok || got != want {
				t.Errorf("ParseJobType(%q) = %q, %v; want %q", in, got, ok, want)
			}
		}
	})

	t.Run("should reject unknown types", func(t *testing.T) {
		if _, ok := ParseJobType("hologram"); ok {
			t.Error("expected hologram to be rejected")
		}
		if JobType("hologram").Valid() {
			t.Error("expected hologram to be invalid")
		}
	})

	t.Run("should map every type to a non-idle pipeline status", func(t *testing.T) {
		for _, jt := range AllJobTypes {
			if PipelineFor(jt).Idle() {
				t.Errorf("PipelineFor(%s) is idle", jt)
			}
		}
		if PipelineIdle.String() != "idle" {
			t.Errorf("idle label = %q", PipelineIdle.String())
		}
	})
}

func TestJobStatus(t *testing.T) {
	t.Run("should treat only completed and failed as terminal", func(t *testing.T) {
		if JobStatusPending.Terminal() || JobStatusProcessing.Terminal() {
			t.Error("pending/processing must not be terminal")
		}
		if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
			t.Error("completed/failed must be terminal")
		}
	})

	t.Run("should tolerate nil jobs and outputs", func(t *testing.T) {
		var j *Job
		if j.Terminal() || j.ResultURLs() != nil || j.ErrorMessage() != "" {
			t.Error("nil job accessors should return zero values")
		}
		j = &Job{Status: JobStatusFailed, Output: &JobOutput{Error: "  quota  "}}
		if j.ErrorMessage() != "quota" {
			t.Errorf("error message = %q", j.ErrorMessage())
		}
	})
}

func TestClassForModel(t *testing.T) {
	if ClassForModel(Model3DFast) != ModelClassFast {
		t.Error("mini model should be fast")
	}
	if ClassForModel(Model3DQuality) != ModelClassQuality || ClassForModel("") != ModelClassQuality {
		t.Error("default model should be quality")
	}
}

// --- Workspace Tests ---

var testRef = WorkspaceRef{ProjectID: "p1", RoomID: "r1"}

func TestWorkspaceRef(t *testing.T) {
	t.Run("should round-trip keys", func(t *testing.T) {
		for _, ref := range []WorkspaceRef{testRef, {ProjectID: "p1"}} {
			got, ok := ParseWorkspaceKey(ref.Key())
			if !ok || got != ref {
				t.Errorf("ParseWorkspaceKey(%q) = %+v, %v", ref.Key(), got, ok)
			}
		}
	})

	t.Run("should require a project", func(t *testing.T) {
		if err := (WorkspaceRef{RoomID: "r"}).Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWorkspaceImages(t *testing.T) {
	t.Run("should append without duplicates and keep order", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		if n := ws.AppendImages("a", "b", "a", " "); n != 2 {
			t.Fatalf("added = %d, want 2", n)
		}
		if n := ws.AppendImages("b", "c"); n != 1 {
			t.Fatalf("added = %d, want 1", n)
		}
		got := ws.Images()
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("images = %v", got)
		}
	})

	t.Run("should not lose concurrent appends", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ws.AppendImages(string(rune('A'+i%26)) + string(rune('a'+i/26)))
			}(i)
		}
		wg.Wait()
		if len(ws.Images()) != 50 {
			t.Errorf("images = %d, want 50", len(ws.Images()))
		}
	})
}

func TestWorkspaceExchange(t *testing.T) {
	t.Run("should append user message and empty placeholder", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		id, err := ws.BeginExchange("hi", []string{"https://ref"})
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if !IsTempID(id) {
			t.Errorf("placeholder id %q should be temporary", id)
		}
		msgs := ws.Messages()
		if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant || msgs[1].Content != "" {
			t.Fatalf("messages = %+v", msgs)
		}
		if _, err := ws.BeginExchange("again", nil); !errors.Is(err, domain.ErrStreamActive) {
			t.Errorf("expected ErrStreamActive, got %v", err)
		}
	})

	t.Run("should keep content across rebind", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		id, _ := ws.BeginExchange("hi", nil)
		ws.AppendDelta(id, "ab")
		if !ws.Rebind(id, "m1") {
			t.Fatal("rebind failed")
		}
		if ws.AppendDelta(id, "x") {
			t.Error("old temp id must no longer accept text")
		}
		ws.AppendDelta("m1", "c")
		if got, _ := ws.AssistantContent("m1"); got != "abc" {
			t.Errorf("content = %q, want abc", got)
		}
	})

	t.Run("should reject deltas after the exchange ends", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		id, _ := ws.BeginExchange("hi", nil)
		ws.EndExchange()
		if ws.AppendDelta(id, "late") || ws.Rollback(id) {
			t.Error("ended exchange must be immutable")
		}
	})

	t.Run("should roll back only the placeholder", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		id, _ := ws.BeginExchange("hi", nil)
		if !ws.Rollback(id) {
			t.Fatal("rollback failed")
		}
		msgs := ws.Messages()
		if len(msgs) != 1 || msgs[0].Content != "hi" {
			t.Errorf("messages = %+v", msgs)
		}
	})

	t.Run("should keep the in-flight exchange when merging server history", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		id, _ := ws.BeginExchange("new question", nil)
		ws.AppendDelta(id, "partial")
		ws.MergeTranscript([]ChatMessage{
			{ID: "s1", Role: RoleUser, Content: "old"},
			{ID: "s2", Role: RoleAssistant, Content: "answer", ImageURLs: []string{"https://img/1"}},
			{ID: "s3", Role: RoleUser, Content: "new question"},
		})
		msgs := ws.Messages()
		if len(msgs) != 4 {
			t.Fatalf("messages = %+v", msgs)
		}
		if msgs[2].ID != "s3" || msgs[3].ID != id || msgs[3].Content != "partial" {
			t.Errorf("merged tail = %+v", msgs[2:])
		}
		if imgs := ws.Images(); len(imgs) != 1 {
			t.Errorf("images from history = %v", imgs)
		}
	})
}

func TestWorkspacePipeline(t *testing.T) {
	t.Run("should allow one job at a time", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		if err := ws.BeginJob(JobTypeModel3D); err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := ws.BeginJob(JobTypeImage2D); !errors.Is(err, domain.ErrPipelineBusy) {
			t.Errorf("expected ErrPipelineBusy, got %v", err)
		}
		if err := NewWorkspace(testRef).BeginJob("bogus"); !errors.Is(err, domain.ErrUnknownJobType) {
			t.Errorf("expected ErrUnknownJobType, got %v", err)
		}
	})

	t.Run("should let exactly one caller claim a job", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		ws.Track(TrackedJob{ID: "j1", Type: JobTypeArtifact, Workspace: testRef})
		if ws.Pipeline() != PipelineGeneratingArtifact {
			t.Fatalf("pipeline = %s", ws.Pipeline())
		}
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ws.ClaimJob("j1") {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("wins = %d, want 1", wins)
		}
		if ws.ClaimJob("other") {
			t.Error("untracked job must not be claimable")
		}
	})

	t.Run("should drop progress on reset", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		ws.Track(TrackedJob{ID: "j1", Type: JobTypeModel3D, Workspace: testRef})
		ws.SetProgressSnapshot(&ProgressSnapshot{JobID: "j1"})
		ws.SetProgress(Progress{Percent: 40})
		ws.ResetPipeline()
		if _, ok := ws.Progress(); ok || ws.ProgressSnapshot() != nil || ws.Tracked() != nil || !ws.Pipeline().Idle() {
			t.Errorf("state after reset = %+v", ws.State())
		}
		ws.SetProgress(Progress{Percent: 50})
		if _, ok := ws.Progress(); ok {
			t.Error("progress without a snapshot must be ignored")
		}
	})
}

func TestWorkspaceDownloads(t *testing.T) {
	ws := NewWorkspace(testRef)
	ws.RequestDownload(JobTypeArtifact)
	if !ws.TakeDownloadRequest(JobTypeArtifact) {
		t.Fatal("expected pending request")
	}
	if ws.TakeDownloadRequest(JobTypeArtifact) {
		t.Error("request must fire at most once")
	}
}

func TestWorkspaceHandoff(t *testing.T) {
	t.Run("should release only the job it still tracks", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		ws.Track(TrackedJob{ID: "old", Type: JobTypeModel3D, Workspace: testRef})
		if !ws.ClaimJob("old") {
			t.Fatal("claim failed")
		}
		ws.Track(TrackedJob{ID: "new", Type: JobTypeImage2D, Workspace: testRef})
		if ws.ReleaseJob("old") {
			t.Error("release of a replaced job must not reset the workspace")
		}
		if ws.Pipeline() != PipelineGenerating2D || ws.Tracked() == nil {
			t.Errorf("state = %+v", ws.State())
		}
		if !ws.ReleaseJob("new") || !ws.Pipeline().Idle() || ws.Tracked() != nil {
			t.Errorf("state after release = %+v", ws.State())
		}
	})

	t.Run("should drop progress of a replaced job", func(t *testing.T) {
		ws := NewWorkspace(testRef)
		ws.Track(TrackedJob{ID: "j3d", Type: JobTypeModel3D, Workspace: testRef})
		ws.SetProgressSnapshot(&ProgressSnapshot{JobID: "j3d"})
		ws.SetProgress(Progress{Percent: 12})
		ws.Track(TrackedJob{ID: "j3d", Type: JobTypeModel3D, Workspace: testRef})
		if ws.ProgressSnapshot() == nil {
			t.Fatal("re-tracking the same job must keep its progress")
		}
		ws.Track(TrackedJob{ID: "j2d", Type: JobTypeImage2D, Workspace: testRef})
		if _, ok := ws.Progress(); ok || ws.ProgressSnapshot() != nil {
			t.Errorf("progress survived: %+v", ws.ProgressSnapshot())
		}
	})
}
