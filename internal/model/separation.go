package model

import "time"

// SeparateRequest represents the request to start a stem separation
type SeparateRequest struct {
	SubjectID      string `json:"subjectId" validate:"required"`
	AudioReference string `json:"audioReference" validate:"required"`
}

// SeparateResponse represents the response when a separation is queued
type SeparateResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// SeparationStatusResponse wraps the job projection returned by the status query
type SeparationStatusResponse struct {
	Success bool          `json:"success"`
	Job     JobProjection `json:"job"`
}

// JobProjection is the caller-visible view of a separation job
type JobProjection struct {
	ID                string       `json:"id"`
	SubjectID         string       `json:"subjectId"`
	Status            JobStatus    `json:"status"`
	Model             string       `json:"model"`
	ProviderUsed      string       `json:"providerUsed,omitempty"`
	Progress          int          `json:"progress"`
	Error             *string      `json:"error"`
	ProjectFolderName string       `json:"projectFolderName,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	CompletedAt       *time.Time   `json:"completedAt"`
	Stems             []StemResult `json:"stems"`
}

// NewJobProjection builds the status view of a job
func NewJobProjection(job *SeparationJob) JobProjection {
	p := JobProjection{
		ID:                job.ID,
		SubjectID:         job.SubjectID,
		Status:            job.Status,
		Model:             job.Model,
		ProviderUsed:      job.ProviderUsed,
		Progress:          job.Progress,
		ProjectFolderName: job.ProjectFolderName,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
		Stems:             job.Stems,
	}
	if job.Error != "" {
		msg := job.Error
		p.Error = &msg
	}
	if p.Stems == nil {
		p.Stems = []StemResult{}
	}
	return p
}
