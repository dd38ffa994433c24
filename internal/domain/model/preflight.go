package model

import (
	"encoding/json"
	"strings"
)

// PreflightCheck is one rule evaluated against the site data known so far.
// Required or Proposed is nil when that value is still unknown.
type PreflightCheck struct {
	Name     string   `json:"name"`
	Required *float64 `json:"required"`
	Proposed *float64 `json:"proposed"`
	Status   string   `json:"status"`
	Notes    string   `json:"notes,omitempty"`
}

// Preflight is the server's readiness check for a report job: what it could
// extract from the conversation and what it still needs to ask.
type Preflight struct {
	Mode                      string           `json:"mode,omitempty"`
	Scope                     string           `json:"scope,omitempty"`
	MissingQuestions          Texts            `json:"missingQuestions"`
	Notes                     Texts            `json:"notes"`
	PredictedComplianceStatus string           `json:"predictedComplianceStatus,omitempty"`
	PredictedStatus           string           `json:"predictedStatus,omitempty"`
	Checks                    []PreflightCheck `json:"checks,omitempty"`
}

func (p *Preflight) Ready() bool { return p != nil && len(p.MissingQuestions) == 0 }

// Outcome is the predicted result label: the compliance status for zoning,
// the readiness status for technical info.
func (p *Preflight) Outcome() string {
	switch {
	case p == nil:
		return ""
	case p.PredictedComplianceStatus != "":
		return p.PredictedComplianceStatus
	case p.PredictedStatus != "":
		return p.PredictedStatus
	case p.Ready():
		return "ready"
	}
	return "needs_info"
}

// Texts decodes a list whose items are plain strings or objects carrying
// the text under "question", "text", "note" or "message".
type Texts []string

func (t *Texts) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Texts, 0, len(raw))
	for _, r := range raw {
		if s := textOf(r); s != "" {
			out = append(out, s)
		}
	}
	*t = out
	return nil
}

func textOf(r json.RawMessage) string {
	var s string
	if json.Unmarshal(r, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if json.Unmarshal(r, &obj) == nil {
		for _, k := range []string{"question", "text", "note", "message"} {
			if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return strings.TrimSpace(string(r))
}

// SceneExport locates the Blender-compatible file of a room's 3D scene.
type SceneExport struct {
	URL    string `json:"exportUrl"`
	Format string `json:"format"`
}

// Ext is the file extension for the export, without the dot.
func (e *SceneExport) Ext() string {
	if e == nil {
		return "bin"
	}
	ext := strings.ToLower(strings.Trim(strings.TrimSpace(e.Format), "."))
	if ext == "" {
		return "bin"
	}
	return ext
}
