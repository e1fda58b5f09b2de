// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"

	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// UploadStatus describes where an upload is in the analysis lifecycle. A
// named string type keeps statuses from mixing with arbitrary text.
type UploadStatus string

const (
	StatusUploaded  UploadStatus = "uploaded"
	StatusAnalyzing UploadStatus = "analyzing"
	StatusComplete  UploadStatus = "complete"
	StatusRejected  UploadStatus = "rejected"
	StatusFailed    UploadStatus = "failed"
)

// UploadRecord holds metadata about one submitted file. The media itself is
// carried separately so records stay small and safe to copy.
type UploadRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType"`
	Kind        verdict.MediaKind `json:"kind,omitempty"`
	Status      UploadStatus      `json:"status"`
	// Stage is the text of the cosmetic analysis step currently shown.
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	// VerdictID is set once analysis completes.
	VerdictID string    `json:"verdictId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Message   string    `json:"message,omitempty"`
}
