package annotations

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestTitleFromPath(t *testing.T) {
	cases := map[string]string{
		"/media/glass_blowing-demo.mp4": "Glass Blowing Demo",
		"/media/atelier..02.webm":       "Atelier 02",
		"/media/___.mkv":                "Untitled",
	}
	for path, want := range cases {
		if got := TitleFromPath(path); got != want {
			t.Fatalf("TitleFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestNewJobValidate(t *testing.T) {
	valid := NewJob{MediaID: 1, StartTime: 0, EndTime: 1, AudioPath: "a.webm"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid job, got %v", err)
	}
	bad := []NewJob{
		{MediaID: 0, StartTime: 0, EndTime: 1, AudioPath: "a.webm"},
		{MediaID: 1, StartTime: -1, EndTime: 1, AudioPath: "a.webm"},
		{MediaID: 1, StartTime: 2, EndTime: 1, AudioPath: "a.webm"},
		{MediaID: 1, StartTime: 0, EndTime: math.Inf(1), AudioPath: "a.webm"},
		{MediaID: 1, StartTime: 0, EndTime: 1, AudioPath: " "},
	}
	for i, job := range bad {
		if err := job.Validate(); !errors.Is(err, ErrInvalidJob) {
			t.Fatalf("case %d: expected ErrInvalidJob, got %v", i, err)
		}
	}
}

func TestBuildTransitionGuards(t *testing.T) {
	query, args, err := buildTransition(7, StageEnhancement, StatusProcessing, "", "now")
	if err != nil {
		t.Fatalf("buildTransition failed: %v", err)
	}
	if !strings.Contains(query, "enhancement_status = ?") || !strings.Contains(query, "AND transcription_status = ?") {
		t.Fatalf("missing guard in %q", query)
	}
	if strings.Count(query, "?") != len(args) {
		t.Fatalf("placeholder count mismatch: %q has %d args", query, len(args))
	}
	if args[len(args)-1] != string(StatusCompleted) {
		t.Fatalf("expected transcription guard arg, got %v", args)
	}

	query, args, err = buildTransition(7, StageTranscription, StatusFailed, "boom", "now")
	if err != nil {
		t.Fatalf("buildTransition failed: %v", err)
	}
	if strings.Count(query, "transcription_status") != 2 {
		t.Fatalf("unexpected extra guard in %q", query)
	}
	if strings.Count(query, "?") != len(args) || args[len(args)-1] != string(StatusProcessing) {
		t.Fatalf("unexpected args %v for %q", args, query)
	}

	if _, _, err := buildTransition(7, StageTranscription, StatusPending, "", "now"); !errors.Is(err, ErrTransitionRejected) {
		t.Fatalf("expected rejection for pending target, got %v", err)
	}
	if _, _, err := buildTransition(7, Stage("bogus"), StatusProcessing, "", "now"); !errors.Is(err, ErrTransitionRejected) {
		t.Fatalf("expected rejection for unknown stage, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	got := rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	want := "UPDATE t SET a = $1, b = $2 WHERE id = $3"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
}

func TestSummaryRowsCountBothStages(t *testing.T) {
	summary := newSummary()
	addSummaryRow(summary, "completed", "processing", 3)
	addSummaryRow(summary, "failed", "pending", 2)
	if summary[StageTranscription][StatusCompleted] != 3 || summary[StageTranscription][StatusFailed] != 2 {
		t.Fatalf("unexpected transcription counts %v", summary[StageTranscription])
	}
	if summary[StageEnhancement][StatusProcessing] != 3 || summary[StageEnhancement][StatusPending] != 2 {
		t.Fatalf("unexpected enhancement counts %v", summary[StageEnhancement])
	}
}
