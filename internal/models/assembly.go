package models

import "github.com/google/uuid"

// AssemblyTreeNode is the raw assembly tree shape on the wire: bare model
// references with nested children, no names or folder information.
type AssemblyTreeNode struct {
	ModelID  uuid.UUID          `json:"modelId"`
	Children []AssemblyTreeNode `json:"children,omitempty"`
}
