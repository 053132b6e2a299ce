package store

import (
	"context"

	"google.golang.org/genproto/googleapis/api/monitoredres"

	"github.com/ata-marzban/filterd/internal/match"
)

// Resource is a monitored resource registered under a project.
type Resource struct {
	// Name has the form projects/{project}/resources/{id}.
	Name     string
	Project  string
	ID       string
	Resource *monitoredres.MonitoredResource
}

// Document exposes the resource to the filter matcher. Paths are name,
// project, id, type and labels.<key>.
func (r *Resource) Document() match.Fields {
	doc := match.Fields{
		"name":    r.Name,
		"project": r.Project,
		"id":      r.ID,
		"type":    r.Resource.GetType(),
	}
	for k, v := range r.Resource.GetLabels() {
		doc["labels."+k] = v
	}
	return doc
}

// Store defines the storage interface for the resource inventory.
type Store interface {
	// Resource CRUD
	CreateResource(ctx context.Context, project, id string, r *monitoredres.MonitoredResource) (*Resource, error)
	GetResource(ctx context.Context, name string) (*Resource, error)
	ListResources(ctx context.Context, project string, filter string) ([]*Resource, error)
	DeleteResource(ctx context.Context, name string) error
	// DeleteResources removes every resource of the project that matches
	// the filter and reports how many were removed.
	DeleteResources(ctx context.Context, project string, filter string) (int, error)

	// MonitoredResourceDescriptor (read-only, seeded at startup)
	GetResourceDescriptor(ctx context.Context, resourceType string) (*monitoredres.MonitoredResourceDescriptor, error)
	ListResourceDescriptors(ctx context.Context, filter string) ([]*monitoredres.MonitoredResourceDescriptor, error)

	// Admin
	Reset()

	// State returns summary statistics for the admin API.
	State() map[string]interface{}
}
