package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"google.golang.org/genproto/googleapis/api/label"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/ata-marzban/filterd/internal/filter"
	"github.com/ata-marzban/filterd/internal/match"
	"github.com/ata-marzban/filterd/internal/validation"
)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu sync.RWMutex

	// resources: map[fullName]*Resource
	resources map[string]*Resource

	// descriptors: map[resourceType]*MonitoredResourceDescriptor
	descriptors map[string]*monitoredres.MonitoredResourceDescriptor
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		resources:   make(map[string]*Resource),
		descriptors: make(map[string]*monitoredres.MonitoredResourceDescriptor),
	}
	s.seedDescriptors()
	return s
}

func (s *MemoryStore) seedDescriptors() {
	descriptors := []*monitoredres.MonitoredResourceDescriptor{
		{
			Type:        "global",
			DisplayName: "Global",
			Description: "A global resource.",
			Labels: []*label.LabelDescriptor{
				{Key: "project_id", ValueType: label.LabelDescriptor_STRING},
			},
		},
		{
			Type:        "gce_instance",
			DisplayName: "GCE VM Instance",
			Description: "A virtual machine instance hosted in Google Compute Engine.",
			Labels: []*label.LabelDescriptor{
				{Key: "project_id", ValueType: label.LabelDescriptor_STRING},
				{Key: "instance_id", ValueType: label.LabelDescriptor_STRING},
				{Key: "zone", ValueType: label.LabelDescriptor_STRING},
			},
		},
		{
			Type:        "k8s_container",
			DisplayName: "Kubernetes Container",
			Description: "A Kubernetes container instance.",
			Labels: []*label.LabelDescriptor{
				{Key: "project_id", ValueType: label.LabelDescriptor_STRING},
				{Key: "location", ValueType: label.LabelDescriptor_STRING},
				{Key: "cluster_name", ValueType: label.LabelDescriptor_STRING},
				{Key: "namespace_name", ValueType: label.LabelDescriptor_STRING},
				{Key: "pod_name", ValueType: label.LabelDescriptor_STRING},
				{Key: "container_name", ValueType: label.LabelDescriptor_STRING},
			},
		},
		{
			Type:        "k8s_pod",
			DisplayName: "Kubernetes Pod",
			Description: "A Kubernetes pod.",
			Labels: []*label.LabelDescriptor{
				{Key: "project_id", ValueType: label.LabelDescriptor_STRING},
				{Key: "location", ValueType: label.LabelDescriptor_STRING},
				{Key: "cluster_name", ValueType: label.LabelDescriptor_STRING},
				{Key: "namespace_name", ValueType: label.LabelDescriptor_STRING},
				{Key: "pod_name", ValueType: label.LabelDescriptor_STRING},
			},
		},
	}
	for _, d := range descriptors {
		d.Name = "monitoredResourceDescriptors/" + d.Type
		s.descriptors[d.Type] = d
	}
}

// ResourceName builds the full name of a resource.
func ResourceName(project, id string) string {
	return fmt.Sprintf("projects/%s/resources/%s", project, id)
}

func (s *MemoryStore) CreateResource(_ context.Context, project, id string, r *monitoredres.MonitoredResource) (*Resource, error) {
	name := ResourceName(project, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[name]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "resource %q already exists", name)
	}

	stored := &Resource{
		Name:     name,
		Project:  project,
		ID:       id,
		Resource: proto.Clone(r).(*monitoredres.MonitoredResource),
	}
	s.resources[name] = stored
	return cloneResource(stored), nil
}

func (s *MemoryStore) GetResource(_ context.Context, name string) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "resource %q not found", name)
	}
	return cloneResource(r), nil
}

func (s *MemoryStore) ListResources(_ context.Context, project string, filterStr string) ([]*Resource, error) {
	f, err := parseFilter(filterStr)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("projects/%s/resources/", project)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Resource
	for name, r := range s.resources {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ok, err := match.Match(f, r.Document())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid filter: %v", err)
		}
		if ok {
			result = append(result, cloneResource(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStore) DeleteResource(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[name]; !ok {
		return status.Errorf(codes.NotFound, "resource %q not found", name)
	}
	delete(s.resources, name)
	return nil
}

func (s *MemoryStore) DeleteResources(_ context.Context, project string, filterStr string) (int, error) {
	f, err := parseFilter(filterStr)
	if err != nil {
		return 0, err
	}

	prefix := fmt.Sprintf("projects/%s/resources/", project)

	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	for name, r := range s.resources {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ok, err := match.Match(f, r.Document())
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "invalid filter: %v", err)
		}
		if ok {
			doomed = append(doomed, name)
		}
	}
	for _, name := range doomed {
		delete(s.resources, name)
	}
	return len(doomed), nil
}

func (s *MemoryStore) GetResourceDescriptor(_ context.Context, resourceType string) (*monitoredres.MonitoredResourceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.descriptors[resourceType]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "monitored resource descriptor %q not found", resourceType)
	}
	return proto.Clone(d).(*monitoredres.MonitoredResourceDescriptor), nil
}

func (s *MemoryStore) ListResourceDescriptors(_ context.Context, filterStr string) ([]*monitoredres.MonitoredResourceDescriptor, error) {
	f, err := parseFilter(filterStr)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*monitoredres.MonitoredResourceDescriptor
	for _, d := range s.descriptors {
		ok, err := match.Match(f, descriptorDocument(d))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid filter: %v", err)
		}
		if ok {
			result = append(result, proto.Clone(d).(*monitoredres.MonitoredResourceDescriptor))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resources = make(map[string]*Resource)
}

func (s *MemoryStore) State() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projectStats := make(map[string]interface{})
	counts := make(map[string]int)
	for _, r := range s.resources {
		counts[r.Project]++
	}
	for project, n := range counts {
		projectStats[project] = map[string]interface{}{
			"resource_count": n,
		}
	}

	return map[string]interface{}{
		"resources":                      len(s.resources),
		"monitored_resource_descriptors": len(s.descriptors),
		"projects":                       projectStats,
	}
}

// parseFilter applies no length limit; callers that accept filters from
// clients check the length first.
func parseFilter(filterStr string) (*filter.Filter, error) {
	return validation.ValidateFilter(filterStr, 0)
}

// descriptorDocument exposes type, display_name, description and
// labels.<key> (the label value type) to the matcher.
func descriptorDocument(d *monitoredres.MonitoredResourceDescriptor) match.Fields {
	doc := match.Fields{
		"type":         d.GetType(),
		"display_name": d.GetDisplayName(),
		"description":  d.GetDescription(),
	}
	for _, l := range d.GetLabels() {
		doc["labels."+l.GetKey()] = l.GetValueType().String()
	}
	return doc
}

func cloneResource(r *Resource) *Resource {
	c := *r
	c.Resource = proto.Clone(r.Resource).(*monitoredres.MonitoredResource)
	return &c
}
