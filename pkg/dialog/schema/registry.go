// Package schema holds the static job-type parameter schemas that drive
// extraction, completion tracking and validation. Schemas are collaborator
// input: the engine only reads them.
package schema

import (
	"fmt"
	"regexp"

	"streamworks-assistant-be/internal/entity"
)

// Job type codes used across the dialog engine.
const (
	JobTypeStandard     = "STANDARD"
	JobTypeSAP          = "SAP"
	JobTypeFileTransfer = "FILE_TRANSFER"
	JobTypeCustomScript = "CUSTOM_SCRIPT"
)

// ParameterSpec describes one parameter of a job-type schema.
type ParameterSpec struct {
	Name     string
	Scope    entity.ParameterScope
	Kind     entity.ValueKind
	Required bool
	Critical bool // downstream generation cannot proceed without it
	// Question is the clarifying prompt for this parameter. A generic
	// fallback is produced when empty.
	Question string
	// Pattern constrains string values when set.
	Pattern *regexp.Regexp
	// Enum lists the allowed values for enum-kind parameters.
	Enum []string
	// ClassificationRelevant marks parameters whose correction should
	// trigger a job-type re-evaluation.
	ClassificationRelevant bool
}

// JobSchema is the ordered parameter list for one job type. Order is the
// declared priority order used for the next-question suggestion.
type JobSchema struct {
	JobType    string
	Parameters []ParameterSpec
}

// Required returns the required parameter specs in priority order.
func (s JobSchema) Required() []ParameterSpec {
	var out []ParameterSpec
	for _, p := range s.Parameters {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}

// Spec returns the spec for a parameter name.
func (s JobSchema) Spec(name string) (ParameterSpec, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Validate checks a value against the spec's pattern and enum constraints.
func (p ParameterSpec) Validate(v entity.ParameterValue) error {
	raw := v.Raw()
	if p.Pattern != nil && !p.Pattern.MatchString(raw) {
		return fmt.Errorf("parameter %s: value %q does not match expected format", p.Name, raw)
	}
	if len(p.Enum) > 0 {
		for _, allowed := range p.Enum {
			if raw == allowed {
				return nil
			}
		}
		return fmt.Errorf("parameter %s: value %q is not one of %v", p.Name, raw, p.Enum)
	}
	return nil
}

// QuestionText returns the clarifying question for the spec, falling back
// to a generic prompt when no template is declared.
func (p ParameterSpec) QuestionText() string {
	if p.Question != "" {
		return p.Question
	}
	return fmt.Sprintf("Please specify the %s for this stream.", p.Name)
}

// Registry resolves job types to their schemas.
type Registry struct {
	schemas map[string]JobSchema
	generic JobSchema
}

// NewRegistry builds a registry with the built-in StreamWorks schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: map[string]JobSchema{}}
	for _, s := range defaultSchemas() {
		r.schemas[s.JobType] = s
	}
	r.generic = genericSchema()
	return r
}

// NewRegistryWith builds a registry from caller-supplied schemas. Used by
// tests and by deployments that load schemas from configuration.
func NewRegistryWith(schemas ...JobSchema) *Registry {
	r := &Registry{schemas: map[string]JobSchema{}, generic: genericSchema()}
	for _, s := range schemas {
		r.schemas[s.JobType] = s
	}
	return r
}

// Get returns the schema for a job type. An empty job type resolves to the
// generic stream-scope schema so extraction can run before classification
// has settled.
func (r *Registry) Get(jobType string) (JobSchema, bool) {
	if jobType == "" {
		return r.generic, true
	}
	s, ok := r.schemas[jobType]
	return s, ok
}

// JobTypes lists the registered job type codes.
func (r *Registry) JobTypes() []string {
	out := make([]string, 0, len(r.schemas))
	for _, jt := range []string{JobTypeStandard, JobTypeSAP, JobTypeFileTransfer, JobTypeCustomScript} {
		if _, ok := r.schemas[jt]; ok {
			out = append(out, jt)
		}
	}
	for jt := range r.schemas {
		known := false
		for _, o := range out {
			if o == jt {
				known = true
			}
		}
		if !known {
			out = append(out, jt)
		}
	}
	return out
}

var (
	sapSystemPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,2}_[0-9]{2,3}$`)
	sapReportPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,}$`)
	hostPattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

func genericSchema() JobSchema {
	return JobSchema{
		JobType: "",
		Parameters: []ParameterSpec{
			{Name: "stream_name", Scope: entity.ScopeStream, Kind: entity.KindString,
				Question: "What should the new stream be called?"},
			{Name: "description", Scope: entity.ScopeStream, Kind: entity.KindString},
			{Name: "schedule", Scope: entity.ScopeStream, Kind: entity.KindString,
				Question: "When should the stream run (e.g. daily, hourly, or a cron rule)?"},
		},
	}
}

func defaultSchemas() []JobSchema {
	return []JobSchema{
		{
			JobType: JobTypeStandard,
			Parameters: []ParameterSpec{
				{Name: "stream_name", Scope: entity.ScopeStream, Kind: entity.KindString, Required: true, Critical: true,
					Question: "What should the new stream be called?"},
				{Name: "command", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "Which command or program should the job execute?", ClassificationRelevant: true},
				{Name: "schedule", Scope: entity.ScopeStream, Kind: entity.KindString, Required: true,
					Question: "When should the stream run (e.g. daily, hourly, or a cron rule)?"},
				{Name: "agent", Scope: entity.ScopeJob, Kind: entity.KindString,
					Question: "On which agent or host should the job run?"},
				{Name: "description", Scope: entity.ScopeStream, Kind: entity.KindString},
			},
		},
		{
			JobType: JobTypeSAP,
			Parameters: []ParameterSpec{
				{Name: "stream_name", Scope: entity.ScopeStream, Kind: entity.KindString, Required: true, Critical: true,
					Question: "What should the new stream be called?"},
				{Name: "system", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "Which SAP system should the job run against (e.g. PA1_100)?",
					Pattern:  sapSystemPattern, ClassificationRelevant: true},
				{Name: "report", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "Which ABAP report should be executed (e.g. ZTV_EXPORT)?",
					Pattern:  sapReportPattern, ClassificationRelevant: true},
				{Name: "variant", Scope: entity.ScopeJob, Kind: entity.KindString,
					Question: "Which report variant should be used?"},
				{Name: "batch_user", Scope: entity.ScopeJob, Kind: entity.KindString,
					Question: "Which batch user should execute the report?"},
				{Name: "schedule", Scope: entity.ScopeStream, Kind: entity.KindString,
					Question: "When should the stream run (e.g. daily, hourly, or a cron rule)?"},
			},
		},
		{
			JobType: JobTypeFileTransfer,
			Parameters: []ParameterSpec{
				{Name: "stream_name", Scope: entity.ScopeStream, Kind: entity.KindString, Required: true, Critical: true,
					Question: "What should the new stream be called?"},
				{Name: "source_system", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "From which system or server should the files be picked up?",
					Pattern:  hostPattern},
				{Name: "target_system", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "To which system or server should the files be delivered?",
					Pattern:  hostPattern},
				{Name: "protocol", Scope: entity.ScopeJob, Kind: entity.KindEnum, Required: true,
					Question: "Which transfer protocol should be used (FTP, SFTP, SCP, HTTP or HTTPS)?",
					Enum:     []string{"FTP", "FTPS", "SFTP", "SCP", "HTTP", "HTTPS"}, ClassificationRelevant: true},
				{Name: "file_pattern", Scope: entity.ScopeJob, Kind: entity.KindString,
					Question: "Which files should be transferred (e.g. *.csv)?"},
				{Name: "schedule", Scope: entity.ScopeStream, Kind: entity.KindString,
					Question: "When should the stream run (e.g. daily, hourly, or a cron rule)?"},
			},
		},
		{
			JobType: JobTypeCustomScript,
			Parameters: []ParameterSpec{
				{Name: "stream_name", Scope: entity.ScopeStream, Kind: entity.KindString, Required: true, Critical: true,
					Question: "What should the new stream be called?"},
				{Name: "script_path", Scope: entity.ScopeJob, Kind: entity.KindString, Required: true, Critical: true,
					Question: "What is the full path of the script to execute?", ClassificationRelevant: true},
				{Name: "interpreter", Scope: entity.ScopeJob, Kind: entity.KindEnum,
					Question: "Which interpreter should run the script?",
					Enum:     []string{"bash", "sh", "powershell", "python", "perl"}},
				{Name: "arguments", Scope: entity.ScopeJob, Kind: entity.KindString,
					Question: "Which arguments should be passed to the script?"},
				{Name: "schedule", Scope: entity.ScopeStream, Kind: entity.KindString,
					Question: "When should the stream run (e.g. daily, hourly, or a cron rule)?"},
			},
		},
	}
}
