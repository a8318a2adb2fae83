package errors

import (
	"fmt"
	"sync"
)

// Severity represents the severity of a recorded problem
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityIssue
	SeverityFatal
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityIssue:
		return "issue"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Issue is a non-blocking problem: processing continues and output is still
// written.
type Issue struct {
	Source  string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
	Message string `json:"message" yaml:"message" toml:"message"`
}

// String formats the issue as file:line: message
func (i Issue) String() string {
	switch {
	case i.Source != "" && i.Line > 0:
		return fmt.Sprintf("%s:%d: %s", i.Source, i.Line, i.Message)
	case i.Source != "":
		return fmt.Sprintf("%s: %s", i.Source, i.Message)
	default:
		return i.Message
	}
}

// IssueCollector accumulates issues
type IssueCollector struct {
	issues []Issue
	mutex  sync.RWMutex
}

// NewIssueCollector creates a new issue collector
func NewIssueCollector() *IssueCollector {
	return &IssueCollector{issues: make([]Issue, 0)}
}

// Add records an issue
func (ic *IssueCollector) Add(issue Issue) {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.issues = append(ic.issues, issue)
}

// Addf records a formatted issue for source at line (0 when unknown)
func (ic *IssueCollector) Addf(source string, line int, format string, args ...interface{}) {
	ic.Add(Issue{Source: source, Line: line, Message: fmt.Sprintf(format, args...)})
}

// Issues returns a copy of the collected issues
func (ic *IssueCollector) Issues() []Issue {
	ic.mutex.RLock()
	defer ic.mutex.RUnlock()
	result := make([]Issue, len(ic.issues))
	copy(result, ic.issues)
	return result
}

// HasIssues returns true if anything was recorded
func (ic *IssueCollector) HasIssues() bool {
	ic.mutex.RLock()
	defer ic.mutex.RUnlock()
	return len(ic.issues) > 0
}

// Len returns the number of collected issues
func (ic *IssueCollector) Len() int {
	ic.mutex.RLock()
	defer ic.mutex.RUnlock()
	return len(ic.issues)
}

// Clear drops all issues
func (ic *IssueCollector) Clear() {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.issues = ic.issues[:0]
}

// Status is the completion state of a unit of work or of a whole run
type Status int

const (
	StatusSuccess Status = iota
	StatusCompletedWithIssues
	StatusFatal
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCompletedWithIssues:
		return "completed-with-issues"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ExitCode maps the status to the process exit code
func (s Status) ExitCode() int {
	return int(s)
}

// Worse returns the more severe of two statuses
func (s Status) Worse(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// Outcome is the result of one unit of work (one converted file or one
// synchronized project).
type Outcome struct {
	Unit    string
	Outputs []string
	Issues  []Issue
	Err     error
}

// Status derives the completion status of the outcome
func (o Outcome) Status() Status {
	switch {
	case o.Err != nil:
		return StatusFatal
	case len(o.Issues) > 0:
		return StatusCompletedWithIssues
	default:
		return StatusSuccess
	}
}

// StatusOf returns the worst status among outcomes
func StatusOf(outcomes []Outcome) Status {
	status := StatusSuccess
	for _, o := range outcomes {
		status = status.Worse(o.Status())
	}
	return status
}

// ExitError carries a non-success status to main without printing anything
// further.
type ExitError struct {
	Status Status
}

func (e *ExitError) Error() string {
	return "completed with status " + e.Status.String()
}

// Reporter routes a parser's non-blocking problems into an IssueCollector,
// or turns them into parse errors in strict mode.
type Reporter struct {
	Source string
	Strict bool
	Issues *IssueCollector
}

// Notify records an issue at line. In strict mode it returns the problem as
// a PARSE_ERROR instead.
func (r Reporter) Notify(line int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if r.Strict {
		return r.Fatal(line, CodeParse, "%s", msg)
	}
	if r.Issues != nil {
		r.Issues.Add(Issue{Source: r.Source, Line: line, Message: msg})
	}
	return nil
}

// Fatal builds a located parse error.
func (r Reporter) Fatal(line int, code, format string, args ...interface{}) *ToolError {
	return NewParseError(code, fmt.Sprintf(format, args...)).WithLocation(r.Source, line, 0)
}
