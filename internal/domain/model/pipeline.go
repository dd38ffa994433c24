package model

// PipelineStatus labels what a workspace is currently generating.
// The zero value means idle.
type PipelineStatus string

const (
	PipelineIdle               PipelineStatus = ""
	PipelineGenerating2D       PipelineStatus = "generating_2d"
	PipelineGeneratingArtifact PipelineStatus = "generating_artifact"
	PipelineGenerating3D       PipelineStatus = "generating_3d"
	PipelineGeneratingReport   PipelineStatus = "generating_report"
)

func (p PipelineStatus) Idle() bool { return p == PipelineIdle }

func (p PipelineStatus) String() string {
	if p == PipelineIdle {
		return "idle"
	}
	return string(p)
}

// PipelineFor maps a job type to the status shown while it runs.
func PipelineFor(t JobType) PipelineStatus {
	switch t {
	case JobTypeImage2D:
		return PipelineGenerating2D
	case JobTypeArtifact:
		return PipelineGeneratingArtifact
	case JobTypeModel3D:
		return PipelineGenerating3D
	case JobTypeZoningReport, JobTypeTechnicalInfoReport:
		return PipelineGeneratingReport
	}
	return PipelineIdle
}
