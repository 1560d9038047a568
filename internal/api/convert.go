package api

import (
	"os"
	"time"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/preflight"
)

// FromMedia converts a media record to its API representation, reading the
// current size from disk.
func FromMedia(media *annotations.Media) Media {
	if media == nil {
		return Media{}
	}
	dto := Media{
		ID:    media.ID,
		Path:  media.Path,
		Title: media.Title,
		Size:  -1,
	}
	if info, err := os.Stat(media.Path); err == nil && !info.IsDir() {
		dto.Size = info.Size()
	}
	dto.CreatedAt = formatTime(media.CreatedAt)
	return dto
}

// FromMediaList converts media records into API DTOs.
func FromMediaList(items []*annotations.Media) []Media {
	out := make([]Media, 0, len(items))
	for _, item := range items {
		out = append(out, FromMedia(item))
	}
	return out
}

// FromJob converts an annotation job record to its API representation. The
// audio path stays internal.
func FromJob(job *annotations.Job) Annotation {
	if job == nil {
		return Annotation{}
	}
	return Annotation{
		ID:        job.ID,
		MediaID:   job.MediaID,
		StartTime: job.StartTime,
		EndTime:   job.EndTime,
		Language:  job.Language,
		Transcription: StageState{
			Status: string(job.TranscriptionStatus),
			Text:   job.Transcript,
			Error:  job.TranscriptionError,
		},
		Enhancement: StageState{
			Status: string(job.EnhancementStatus),
			Text:   job.EnhancedTranscript,
			Error:  job.EnhancementError,
		},
		CreatedAt: formatTime(job.CreatedAt),
		UpdatedAt: formatTime(job.UpdatedAt),
	}
}

// FromJobs converts job records into API DTOs.
func FromJobs(jobs []*annotations.Job) []Annotation {
	out := make([]Annotation, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromSummary flattens store counts into string-keyed maps.
func FromSummary(summary annotations.Summary) map[string]map[string]int {
	out := make(map[string]map[string]int, len(summary))
	for stage, counts := range summary {
		inner := make(map[string]int, len(counts))
		for status, n := range counts {
			inner[string(status)] = n
		}
		out[string(stage)] = inner
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// TranscriptionStatus reports the transcription endpoint configuration.
func TranscriptionStatus(cfg config.Transcription) RemoteStatus {
	return RemoteStatus{Model: cfg.Model, BaseURL: cfg.BaseURL, APIConfigured: cfg.APIKey != ""}
}

// EnhancementStatus reports the enhancement endpoint configuration.
func EnhancementStatus(cfg config.Enhancement) RemoteStatus {
	return RemoteStatus{Model: cfg.Model, BaseURL: cfg.BaseURL, APIConfigured: cfg.APIKey != ""}
}

// HealthStatus derives the overall status string from check results.
func HealthStatus(checks []CheckResult) string {
	for _, c := range checks {
		if !c.Passed {
			return "degraded"
		}
	}
	return "ok"
}

// FormatTime renders a timestamp the way API payloads do.
func FormatTime(ts time.Time) string {
	return formatTime(ts)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
