package annotations

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage names one half of the two-stage annotation pipeline.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageEnhancement   Stage = "enhancement"
)

// Stages lists pipeline stages in execution order.
var Stages = []Stage{StageTranscription, StageEnhancement}

// Valid reports whether the stage is one of the known pipeline stages.
func (s Stage) Valid() bool {
	return s == StageTranscription || s == StageEnhancement
}

// Status is the per-stage lifecycle state of an annotation job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every stage status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Media is a playable local file registered for annotation. Its size is not
// stored; callers stat the path whenever they need it.
type Media struct {
	ID        int64
	Path      string
	Title     string
	CreatedAt time.Time
}

// Job is one recorded annotation and its two-stage processing state.
type Job struct {
	ID        int64
	MediaID   int64
	StartTime float64
	EndTime   float64
	AudioPath string
	Language  string

	TranscriptionStatus Status
	Transcript          string
	TranscriptionError  string

	EnhancementStatus  Status
	EnhancedTranscript string
	EnhancementError   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StageStatus returns the status of the given stage.
func (j *Job) StageStatus(stage Stage) Status {
	if stage == StageEnhancement {
		return j.EnhancementStatus
	}
	return j.TranscriptionStatus
}

// Settled reports whether no further automatic transitions will happen: either
// both stages finished, or transcription failed and enhancement can never start.
func (j *Job) Settled() bool {
	if j.TranscriptionStatus == StatusFailed {
		return true
	}
	return j.TranscriptionStatus.Terminal() && j.EnhancementStatus.Terminal()
}

// NewJob carries the fields supplied when an annotation is submitted.
type NewJob struct {
	MediaID   int64
	StartTime float64
	EndTime   float64
	AudioPath string
	Language  string
}

// Validate checks the submission bounds. Media duration is not known here, so
// only 0 <= start < end is enforced.
func (n NewJob) Validate() error {
	if n.MediaID <= 0 {
		return fmt.Errorf("%w: media id is required", ErrInvalidJob)
	}
	for _, v := range []float64{n.StartTime, n.EndTime} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: timestamps must be finite", ErrInvalidJob)
		}
	}
	if n.StartTime < 0 {
		return fmt.Errorf("%w: start time must not be negative", ErrInvalidJob)
	}
	if n.StartTime >= n.EndTime {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidJob)
	}
	if strings.TrimSpace(n.AudioPath) == "" {
		return fmt.Errorf("%w: audio path is required", ErrInvalidJob)
	}
	return nil
}

// Summary counts jobs per stage and status.
type Summary map[Stage]map[Status]int

func newSummary() Summary {
	summary := make(Summary, len(Stages))
	for _, stage := range Stages {
		counts := make(map[Status]int, len(Statuses))
		for _, status := range Statuses {
			counts[status] = 0
		}
		summary[stage] = counts
	}
	return summary
}

// TitleFromPath derives a display title from a media file name.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}
