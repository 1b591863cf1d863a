package copilot

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"prodplan-copilot/internal/models"
)

// employeeNamePattern is the fallback name shape used when a name slips into
// generated text without matching anything in the queried roster — e.g. a
// model paraphrasing a name it was never explicitly given.
var employeeNamePattern = regexp.MustCompile(`\b[A-ZА-Я][a-zа-я]+ [A-ZА-Я][a-zа-я]+\b`)

// employeeRoster extracts the names a response is checked against, from the
// allocations half of a snapshot — the same roster source the original
// redaction helper pulled from
// context["operational_snapshot"]["allocations"]["top_employees"].
func employeeRoster(snap *models.OperationalSnapshot) []string {
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(snap.TopEmployees))
	for _, e := range snap.TopEmployees {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names
}

// maskEmployeeID derives a short, stable, non-reversible placeholder id for
// a name so the same employee always masks to the same id within a
// response instead of a fresh one each mention.
func maskEmployeeID(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(name)))
	return h.Sum32() % 10000
}

// redactEmployeeNames masks probable employee names in text unless the
// caller holds the HR role, per spec.md §4.7. Every name in the roster is
// masked by exact match first (the original's roster-driven path); any
// remaining "Firstname Lastname"-shaped text is masked as a fallback so a
// name the roster query didn't capture still doesn't leak. Applied only
// after citation grounding has already run, so redaction never hides a fact
// the grounding check still needs to see.
func redactEmployeeNames(text string, callerRole string, enabled bool, snap *models.OperationalSnapshot) string {
	if !enabled || callerRole == "hr" {
		return text
	}

	masked := text
	for _, name := range employeeRoster(snap) {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name))
		masked = pattern.ReplaceAllString(masked, fmt.Sprintf("[Employee %d]", maskEmployeeID(name)))
	}
	return employeeNamePattern.ReplaceAllString(masked, "[REDACTED]")
}
