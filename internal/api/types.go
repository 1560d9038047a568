package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Media describes a registered media file. Size is read from disk when the
// payload is built; -1 means the file could not be stat'ed.
type Media struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// MediaRequest registers an existing local file.
type MediaRequest struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// MediaListResponse wraps a collection of media files.
type MediaListResponse struct {
	Items []Media `json:"items"`
}

// StageState captures one stage of an annotation job.
type StageState struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Annotation describes an annotation job in a transport-friendly format.
type Annotation struct {
	ID            int64      `json:"id"`
	MediaID       int64      `json:"mediaId"`
	StartTime     float64    `json:"startTime"`
	EndTime       float64    `json:"endTime"`
	Language      string     `json:"language,omitempty"`
	Transcription StageState `json:"transcription"`
	Enhancement   StageState `json:"enhancement"`
	CreatedAt     string     `json:"createdAt,omitempty"`
	UpdatedAt     string     `json:"updatedAt,omitempty"`
}

// AnnotationListResponse wraps a collection of annotations.
type AnnotationListResponse struct {
	Items []Annotation `json:"items"`
}

// AnnotationResponse wraps a single annotation.
type AnnotationResponse struct {
	Item Annotation `json:"item"`
}

// RemoteStatus summarizes one remote endpoint's configuration.
type RemoteStatus struct {
	Model         string `json:"model"`
	BaseURL       string `json:"base_url"`
	APIConfigured bool   `json:"api_configured"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Health aggregates daemon runtime information for API consumers.
type Health struct {
	Status        string                    `json:"status"`
	Timestamp     string                    `json:"timestamp"`
	Observers     int                       `json:"observers"`
	Jobs          map[string]map[string]int `json:"jobs"`
	Transcription RemoteStatus              `json:"transcription"`
	Enhancement   RemoteStatus              `json:"enhancement"`
	Checks        []CheckResult             `json:"checks"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
