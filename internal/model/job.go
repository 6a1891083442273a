package model

import "time"

// SeparationJob represents a stem separation job for one source recording
type SeparationJob struct {
	ID                string       `json:"id"`
	SubjectID         string       `json:"subjectId"`
	Title             string       `json:"title,omitempty"`
	Status            JobStatus    `json:"status"`
	Model             string       `json:"model"`
	Progress          int          `json:"progress"`
	ProviderUsed      string       `json:"providerUsed,omitempty"`
	Stems             []StemResult `json:"stems"`
	Error             string       `json:"error,omitempty"`
	ProjectFolderName string       `json:"projectFolderName,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	StartedAt         *time.Time   `json:"startedAt,omitempty"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
}

// StemResult represents a single separated stem
type StemResult struct {
	ID              string   `json:"id"`
	StemType        StemType `json:"stemType"`
	URL             string   `json:"url"`
	DurationSeconds float64  `json:"durationSeconds"`
	SampleRateHz    int      `json:"sampleRateHz"`
	Energy          float64  `json:"energy"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *SeparationJob) Clone() *SeparationJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Stems != nil {
		cp.Stems = make([]StemResult, len(j.Stems))
		copy(cp.Stems, j.Stems)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// SetProgress raises progress; lower values are ignored so progress never goes backwards.
func (j *SeparationJob) SetProgress(progress int) {
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
}

// SeparatedStem is what a separation backend reports for one stem
type SeparatedStem struct {
	URL        string  `json:"url,omitempty"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate"`
	Energy     float64 `json:"energy"`
}

// StemSet maps each stem type to a backend result
type StemSet map[StemType]SeparatedStem

// SeparationTask is the unit of background work handed to a launcher
type SeparationTask struct {
	JobID          string `json:"jobId"`
	SubjectID      string `json:"subjectId"`
	AudioReference string `json:"audioReference"`
	Title          string `json:"title"`
}

// SeparationInput is what every separation backend receives
type SeparationInput struct {
	Audio          []byte // downloaded source audio
	SourceURL      string // resolved absolute URL of the source audio
	AudioReference string // reference as submitted, possibly site-relative
}
