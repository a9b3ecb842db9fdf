package classify

import (
	"regexp"

	"streamworks-assistant-be/pkg/dialog/schema"
)

// Profile is the matching material for one job type: decisive keywords,
// structural patterns and a context-term set for co-occurrence scoring.
// Keywords and context terms are lowercase; utterances mix German and
// English, so both appear.
type Profile struct {
	JobType      string
	Keywords     []string
	Patterns     []*regexp.Regexp
	ContextTerms []string
}

var (
	sapSystemRef   = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,2}_[0-9]{2,3}\b`)
	sapReportRef   = regexp.MustCompile(`\bZ[A-Z0-9_]{2,}\b`)
	sapTransaction = regexp.MustCompile(`\b(?:SE38|SM36|SM37|SA38)\b`)
	protocolRef    = regexp.MustCompile(`(?i)\b(?:sftp|ftps?|scp)\b`)
	globRef        = regexp.MustCompile(`\*\.[A-Za-z0-9]+`)
	pathRef        = regexp.MustCompile(`(?:/[A-Za-z0-9_.-]+){2,}|[A-Za-z]:\\[A-Za-z0-9_.\\-]+`)
	cronRef        = regexp.MustCompile(`\b[\d*/,-]+ [\d*/,-]+ [\d*/,-]+ [\d*/,-]+ [\d*/,-]+\b`)
	scriptExtRef   = regexp.MustCompile(`\b[\w-]+\.(?:sh|ps1|py|pl|bat|cmd)\b`)
)

// DefaultProfiles returns the built-in profiles for the StreamWorks job
// types.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			JobType:  schema.JobTypeSAP,
			Keywords: []string{"sap", "abap", "r/3"},
			Patterns: []*regexp.Regexp{sapSystemRef, sapReportRef, sapTransaction},
			ContextTerms: []string{
				"export", "system", "report", "mandant", "variante", "batch", "buchungen",
			},
		},
		{
			JobType:  schema.JobTypeFileTransfer,
			Keywords: []string{"sftp", "ftp", "scp", "transfer", "copy", "kopieren", "übertragung", "übertragen"},
			Patterns: []*regexp.Regexp{protocolRef, globRef},
			ContextTerms: []string{
				"files", "dateien", "server", "directory", "verzeichnis", "quelle", "ziel", "protocol",
			},
		},
		{
			JobType:  schema.JobTypeCustomScript,
			Keywords: []string{"script", "skript", "powershell", "python", "shell"},
			Patterns: []*regexp.Regexp{scriptExtRef, pathRef},
			ContextTerms: []string{
				"ausführen", "execute", "interpreter", "argumente", "arguments",
			},
		},
		{
			JobType:  schema.JobTypeStandard,
			Keywords: []string{"batchlauf", "standardjob"},
			Patterns: []*regexp.Regexp{cronRef},
			ContextTerms: []string{
				"job", "täglich", "daily", "stündlich", "hourly", "zeitplan", "schedule",
			},
		},
	}
}
