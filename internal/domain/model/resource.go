package model

// WorldAssets are the 3D scene references attached to a room by a
// completed model_3d job.
type WorldAssets struct {
	WorldID         string            `json:"worldId,omitempty"`
	OperationID     string            `json:"operationId,omitempty"`
	MarbleURL       string            `json:"marbleUrl,omitempty"`
	ThumbnailURL    string            `json:"thumbnailUrl,omitempty"`
	SplatURLs       map[string]string `json:"splatUrls,omitempty"`
	ColliderMeshURL string            `json:"colliderMeshUrl,omitempty"`
	PanoURL         string            `json:"panoUrl,omitempty"`
	ExportURL       string            `json:"exportUrl,omitempty"`
	ExportFormat    string            `json:"exportFormat,omitempty"`
	Caption         string            `json:"caption,omitempty"`
}

// ViewerURL picks the asset the external splat viewer should load.
func (w *WorldAssets) ViewerURL() string {
	if w == nil {
		return ""
	}
	for _, key := range []string{"500k", "full_res", "100k"} {
		if u := w.SplatURLs[key]; u != "" {
			return u
		}
	}
	return w.MarbleURL
}

type Room struct {
	ID                  string       `json:"id"`
	ProjectID           string       `json:"projectId,omitempty"`
	Name                string       `json:"name"`
	RoomType            string       `json:"roomType,omitempty"`
	Status              string       `json:"status,omitempty"`
	Approved2DImageURLs []string     `json:"approved2dImageUrls,omitempty"`
	Latest3DJobID       string       `json:"latest3dJobId,omitempty"`
	ArtifactURL         string       `json:"artifactUrl,omitempty"`
	ArtifactContent     string       `json:"artifactContent,omitempty"`
	WorldLabs           *WorldAssets `json:"worldLabs,omitempty"`
}

// ReportRecord is a generated regulatory document stored on the project.
type ReportRecord struct {
	Status           string `json:"status,omitempty"`
	GeneratedByJobID string `json:"generatedByJobId,omitempty"`
	ReportJSONURL    string `json:"reportJsonUrl,omitempty"`
	ReportPDFURL     string `json:"reportPdfUrl,omitempty"`
	ReportPDFBase64  string `json:"reportPdfBase64,omitempty"`
}

type Regulatory struct {
	Zoning        *ReportRecord `json:"zoning,omitempty"`
	TechnicalInfo *ReportRecord `json:"technicalInfo,omitempty"`
}

type Project struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Regulatory  *Regulatory `json:"regulatory,omitempty"`
}

// Report returns the record a report job of type t writes, or nil.
func (p *Project) Report(t JobType) *ReportRecord {
	if p == nil || p.Regulatory == nil {
		return nil
	}
	switch t {
	case JobTypeZoningReport:
		return p.Regulatory.Zoning
	case JobTypeTechnicalInfoReport:
		return p.Regulatory.TechnicalInfo
	}
	return nil
}
