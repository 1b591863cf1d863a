package models

import "time"

// ErrorSeverity is the closed set of severities an operational error event
// may carry.
type ErrorSeverity string

const (
	SeverityMinor    ErrorSeverity = "Minor"
	SeverityMajor    ErrorSeverity = "Major"
	SeverityCritical ErrorSeverity = "Critical"
)

// OperationalError is one recent error-like event surfaced in a snapshot.
type OperationalError struct {
	ID        string
	Phase     string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// PhaseWIP is a work-in-progress count for one production phase.
type PhaseWIP struct {
	Phase string
	Count int
}

// EmployeeAllocation is a work-in-progress count attributed to one employee,
// the HR-sensitive half of the allocations query alongside PhaseWIP. Never
// rendered into a prompt or response verbatim for a non-HR caller — see
// redactEmployeeNames.
type EmployeeAllocation struct {
	Name  string
	Count int
}

// KPISet holds the current value of every tracked KPI, each in [0,100] or
// nil when the underlying collaborator has no data for the window.
type KPISet struct {
	Availability *float64
	Performance  *float64
	Quality      *float64
	OEE          *float64
	FPY          *float64
	ReworkRate   *float64
}

// DataGap records a sub-query that failed while a snapshot was being
// assembled. The Context Builder is best-effort: a failed sub-query never
// aborts snapshot construction, it is recorded here. ContextBuilder.Render
// lists gaps as plain text lines without a citation marker; only the daily
// feedback job cites them, with one low-trust calculation citation when two
// or more gaps are present. Answers to /ask never carry a data-gap citation.
type DataGap struct {
	Source string
	Reason string
}

// OperationalSnapshot is an immutable, per-request view of operational
// state. It is never mutated after construction; every component that reads
// it receives the same pointer.
type OperationalSnapshot struct {
	TenantID       string
	WindowStart    time.Time
	WindowEnd      time.Time
	KPIs           KPISet
	OrdersByStatus map[string]int
	RecentErrors   []OperationalError
	TopPhasesByWIP []PhaseWIP
	TopEmployees   []EmployeeAllocation
	DataGaps       []DataGap

	// TrustIndex is computed once per snapshot from data freshness (row
	// recency against the window), integrity (a cross-query sum-consistency
	// check) and completeness (the non-null ratio across tracked KPIs), per
	// spec.md §4.3. The daily feedback job's KPI and quality-event citations
	// carry it; fast-path KPI citations and data-gap citations use fixed
	// trust values instead.
	TrustIndex float64
}

// marker returns an opaque "[DB:<kind>:<ref>]" string in the same format
// ContextBuilder.Render writes inline to tag a citable fact, and that the
// Guardrail later checks citation refs against. Render formats its markers
// itself and does not call this method.
func (s *OperationalSnapshot) marker(kind, ref string) string {
	return "[DB:" + kind + ":" + ref + "]"
}
