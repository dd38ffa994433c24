package model

import "strings"

type JobType string

const (
	JobTypeImage2D             JobType = "image_2d"
	JobTypeModel3D             JobType = "model_3d"
	JobTypeArtifact            JobType = "artifact"
	JobTypeZoningReport        JobType = "zoning_report"
	JobTypeTechnicalInfoReport JobType = "technical_info_report"
)

// AllJobTypes lists every job type the studio API can return.
var AllJobTypes = []JobType{
	JobTypeImage2D,
	JobTypeModel3D,
	JobTypeArtifact,
	JobTypeZoningReport,
	JobTypeTechnicalInfoReport,
}

func (t JobType) Valid() bool {
	for _, known := range AllJobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseJobType accepts the wire names plus the short CLI aliases.
func ParseJobType(s string) (JobType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image_2d", "2d":
		return JobTypeImage2D, true
	case "model_3d", "3d":
		return JobTypeModel3D, true
	case "artifact":
		return JobTypeArtifact, true
	case "zoning_report", "zoning":
		return JobTypeZoningReport, true
	case "technical_info_report", "technical-info", "technical_info":
		return JobTypeTechnicalInfoReport, true
	}
	return "", false
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobOutput is only meaningful once the job is terminal.
type JobOutput struct {
	ResultURLs []string `json:"resultUrls,omitempty"`
	Error      string   `json:"error,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

// Job is a read-only snapshot of server-side generation work.
type Job struct {
	ID        string     `json:"id"`
	Type      JobType    `json:"type"`
	Status    JobStatus  `json:"status"`
	RoomID    string     `json:"roomId,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
	Output    *JobOutput `json:"output,omitempty"`
}

func (j *Job) Terminal() bool {
	return j != nil && j.Status.Terminal()
}

func (j *Job) ResultURLs() []string {
	if j == nil || j.Output == nil {
		return nil
	}
	return j.Output.ResultURLs
}

// ErrorMessage returns the server-provided failure text, if any.
func (j *Job) ErrorMessage() string {
	if j == nil || j.Output == nil {
		return ""
	}
	return strings.TrimSpace(j.Output.Error)
}

// FailureFallback is shown when a failed job carries no error text.
func FailureFallback(t JobType) string {
	switch t {
	case JobTypeImage2D:
		return "Image generation failed. Please try again."
	case JobTypeModel3D:
		return "3D generation failed. Please try again."
	case JobTypeArtifact:
		return "Artifact generation failed. Please try again."
	case JobTypeZoningReport:
		return "Zoning report generation failed. Please try again."
	case JobTypeTechnicalInfoReport:
		return "Technical info report generation failed. Please try again."
	}
	return "Generation failed. Please try again."
}
