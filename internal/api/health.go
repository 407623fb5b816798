// Package api defines the contracts an external HTTP+SSE router calls into
// (spec.md §4.8): the health payload, the bearer-token guard, SSE event
// framing, and the Service type mutating/reading knowledge through the
// storage writer/reader split. It does not implement an HTTP mux itself —
// per spec.md §1's scope boundary, routing glue is an external collaborator.
package api

import (
	"github.com/yocore/yocore/internal/storage"
)

// HealthPayload is spec.md §6's unauthenticated /health response shape.
type HealthPayload struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	InstanceUUID string `json:"instance_uuid"`
	InstanceName string `json:"instance_name,omitempty"`
	Storage      string `json:"storage"`
}

// BuildHealth assembles the /health payload from instance metadata and the
// active backend's mode (spec.md §6: `{"status":"ok","version":...,
// "instance_uuid":...,"instance_name":...,"storage":"db|ephemeral"}`).
func BuildHealth(version string, meta storage.InstanceMetadata, backend storage.Backend) HealthPayload {
	return HealthPayload{
		Status:       "ok",
		Version:      version,
		InstanceUUID: meta.UUID,
		InstanceName: meta.InstanceName,
		Storage:      backend.Mode(),
	}
}
