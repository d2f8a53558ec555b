// Package models defines core data structures for the tenant API: models,
// folders, metadata properties, and geometric match results.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Model state values reported by the platform.
const (
	StateFinished   = "finished"
	StateProcessing = "processing"
	StateFailed     = "failed"
)

// Model represents a single 3D model record.
type Model struct {
	UUID       uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	FolderID   uint32    `json:"folderId"`
	FolderName string    `json:"folderName,omitempty"`
	IsAssembly bool      `json:"isAssembly"`
	FileType   string    `json:"fileType"`
	Units      string    `json:"units"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	// Metadata is merged in client-side on request; it is not part of the
	// model record on the wire.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Ready reports whether the model finished geometric processing and can be
// used in match queries.
func (m *Model) Ready() bool {
	return m.State == StateFinished
}

// PageData is the paging envelope the platform attaches to list responses.
type PageData struct {
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
}

// HasNext reports whether more pages follow the current one.
func (p PageData) HasNext() bool {
	return p.CurrentPage < p.LastPage
}

// ModelPage is one page of a model listing.
type ModelPage struct {
	Models   []Model  `json:"models"`
	PageData PageData `json:"pageData"`
}
