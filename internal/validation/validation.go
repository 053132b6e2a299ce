package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ata-marzban/filterd/internal/filter"
	"github.com/ata-marzban/filterd/internal/match"
)

const DefaultMaxFilterLength = 2048

// CheckFilterLength rejects filters longer than max bytes. A non-positive
// max disables the check.
func CheckFilterLength(text string, max int) error {
	if max > 0 && len(text) > max {
		return BadRequest(fmt.Sprintf("filter is %d bytes, maximum is %d", len(text), max),
			Violation("filter", "filter too long"))
	}
	return nil
}

// FilterError converts a parse failure into InvalidArgument with a
// BadRequest detail for the filter field.
func FilterError(err error) error {
	desc := err.Error()
	if pe, ok := filter.AsParseError(err); ok {
		desc = fmt.Sprintf("%s (%s) at position %d", pe.Message, pe.Code, pe.Position)
	}
	return BadRequest("invalid filter: "+err.Error(), Violation("filter", desc))
}

// CheckOperators rejects filters using operators the matcher does not know.
func CheckOperators(f *filter.Filter) error {
	if err := match.Validate(f); err != nil {
		return BadRequest("invalid filter: "+err.Error(), Violation("filter", err.Error()))
	}
	return nil
}

// ParseFilter checks the length of text and parses it.
func ParseFilter(text string, max int) (*filter.Filter, error) {
	if err := CheckFilterLength(text, max); err != nil {
		return nil, err
	}
	f, err := filter.Parse(text)
	if err != nil {
		return nil, FilterError(err)
	}
	return f, nil
}

// ValidateFilter is ParseFilter plus CheckOperators.
func ValidateFilter(text string, max int) (*filter.Filter, error) {
	f, err := ParseFilter(text, max)
	if err != nil {
		return nil, err
	}
	if err := CheckOperators(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Violation builds a single field violation.
func Violation(field, description string) *errdetails.BadRequest_FieldViolation {
	return &errdetails.BadRequest_FieldViolation{Field: field, Description: description}
}

// BadRequest returns an InvalidArgument status carrying the given field
// violations as an errdetails.BadRequest.
func BadRequest(msg string, violations ...*errdetails.BadRequest_FieldViolation) error {
	st := status.New(codes.InvalidArgument, msg)
	if len(violations) == 0 {
		return st.Err()
	}
	withDetails, err := st.WithDetails(&errdetails.BadRequest{FieldViolations: violations})
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// FieldViolations extracts the BadRequest violations from a status error.
func FieldViolations(err error) []*errdetails.BadRequest_FieldViolation {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var out []*errdetails.BadRequest_FieldViolation
	for _, d := range st.Details() {
		if br, ok := d.(*errdetails.BadRequest); ok {
			out = append(out, br.GetFieldViolations()...)
		}
	}
	return out
}

// labelError is a single failed label check, kept typed so the aggregate
// can be turned into field violations.
type labelError struct {
	key string
	msg string
}

func (e *labelError) Error() string {
	return fmt.Sprintf("labels.%s: %s", e.key, e.msg)
}

// ValidateResource checks a resource against the descriptor of its type.
// All label problems are reported together.
func ValidateResource(r *monitoredres.MonitoredResource, d *monitoredres.MonitoredResourceDescriptor) error {
	if r == nil {
		return status.Error(codes.InvalidArgument, "resource is required")
	}
	if r.GetType() == "" {
		return status.Error(codes.InvalidArgument, "resource.type is required")
	}
	if d == nil || d.GetType() != r.GetType() {
		return status.Errorf(codes.InvalidArgument, "unknown resource type %q", r.GetType())
	}

	known := make(map[string]bool, len(d.GetLabels()))
	for _, l := range d.GetLabels() {
		known[l.GetKey()] = true
	}

	keys := make([]string, 0, len(r.GetLabels()))
	for k := range r.GetLabels() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	for _, k := range keys {
		if !known[k] {
			result = multierror.Append(result, &labelError{key: k, msg: fmt.Sprintf("not defined for resource type %q", r.GetType())})
			continue
		}
		if strings.TrimSpace(r.GetLabels()[k]) == "" {
			result = multierror.Append(result, &labelError{key: k, msg: "value is empty"})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		var violations []*errdetails.BadRequest_FieldViolation
		for _, e := range result.Errors {
			var le *labelError
			if errors.As(e, &le) {
				violations = append(violations, Violation("resource.labels."+le.key, le.msg))
			}
		}
		return BadRequest(fmt.Sprintf("invalid resource: %d label error(s)", len(result.Errors)), violations...)
	}
	return nil
}

// ValidateResourceID checks a client-supplied resource ID.
func ValidateResourceID(id string) error {
	if id == "" {
		return status.Error(codes.InvalidArgument, "resource_id is required")
	}
	if strings.ContainsAny(id, "/ ") {
		return status.Errorf(codes.InvalidArgument, "resource_id must not contain '/' or spaces, got %q", id)
	}
	return nil
}

// ParseProjectFromName extracts the project ID from a resource name like "projects/{project}".
func ParseProjectFromName(name string) (string, error) {
	if !strings.HasPrefix(name, "projects/") {
		return "", status.Errorf(codes.InvalidArgument, "name must start with 'projects/', got %q", name)
	}
	project := strings.TrimPrefix(name, "projects/")
	// Handle cases like "projects/my-proj/resources" by taking only the project segment.
	if idx := strings.IndexByte(project, '/'); idx >= 0 {
		project = project[:idx]
	}
	if project == "" {
		return "", status.Error(codes.InvalidArgument, "project ID is empty")
	}
	return project, nil
}

// ParseResourceName extracts project and ID from
// "projects/{project}/resources/{id}".
func ParseResourceName(name string) (project, id string, err error) {
	const prefix = "projects/"
	const segment = "/resources/"

	if !strings.HasPrefix(name, prefix) {
		return "", "", status.Errorf(codes.InvalidArgument, "invalid resource name: %q", name)
	}
	rest := name[len(prefix):]
	idx := strings.Index(rest, segment)
	if idx < 0 {
		return "", "", status.Errorf(codes.InvalidArgument, "invalid resource name: %q", name)
	}
	project = rest[:idx]
	id = rest[idx+len(segment):]
	if project == "" || id == "" || strings.Contains(id, "/") {
		return "", "", status.Errorf(codes.InvalidArgument, "invalid resource name: %q", name)
	}
	return project, id, nil
}
