package model

import (
	"strings"
	"time"
)

// ModelClass selects the expected duration of a 3D reconstruction.
type ModelClass string

const (
	ModelClassFast    ModelClass = "fast"
	ModelClassQuality ModelClass = "quality"
)

const (
	Model3DQuality = "Marble 0.1-plus"
	Model3DFast    = "Marble 0.1-mini"
)

// ClassForModel maps a World Labs model name to its duration class.
func ClassForModel(name string) ModelClass {
	if strings.Contains(strings.ToLower(name), "mini") {
		return ModelClassFast
	}
	return ModelClassQuality
}

// ProgressSnapshot is derived display state; it is never persisted.
type ProgressSnapshot struct {
	JobID          string        `json:"jobId,omitempty"`
	ModelClass     ModelClass    `json:"modelClass"`
	StartedAt      time.Time     `json:"startedAt"`
	EstimatedTotal time.Duration `json:"estimatedTotal"`
}

type Progress struct {
	Percent   float64       `json:"percent"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Overdue   bool          `json:"overdue"`
	Done      bool          `json:"done"`
}
