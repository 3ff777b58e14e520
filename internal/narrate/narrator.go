// Package narrate composes and persists the append-only audit commentary
// attached to maintenance events. Narrator functions are pure text
// composition; persisting the resulting Comment is the caller's job.
package narrate

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProvenanceMachine = "machine"
	ProvenanceHuman   = "human"
)

// Comment is a narration payload with provenance, so consumers can tell a
// generated comment from a human override without sniffing the text.
type Comment struct {
	Body       string
	Provenance string
}

// Human wraps an operator-supplied comment verbatim.
func Human(text string) Comment {
	return Comment{Body: text, Provenance: ProvenanceHuman}
}

func machine(format string, args ...any) Comment {
	return Comment{Body: fmt.Sprintf(format, args...), Provenance: ProvenanceMachine}
}

func ActionCreated(actionName, username string) Comment {
	return machine("Action created: %q by %s", actionName, username)
}

func ActionCreatedFromProto(actionName, username string) Comment {
	return machine("Action created from proto: %q by %s", actionName, username)
}

func ActionCreatedFromTemplate(actionName, username string) Comment {
	return machine("Action created from template: %q by %s", actionName, username)
}

func ActionDuplicated(actionName, username string) Comment {
	return machine("Action duplicated: %q by %s", actionName, username)
}

func ActionDeleted(actionName, username string) Comment {
	return machine("Action deleted: %q by %s", actionName, username)
}

// BlockerOpened narrates a new blocker. Priority is optional and omitted
// from the text when nil.
func BlockerOpened(username, statusCode, reason string, priority *string) Comment {
	body := fmt.Sprintf("Blocker opened: %s (%s) by %s", statusCode, reason, username)
	if priority != nil && *priority != "" {
		body += fmt.Sprintf(" | Priority: %s", *priority)
	}
	return Comment{Body: body, Provenance: ProvenanceMachine}
}

// BlockerClosed narrates the end of a blocker. Notes are optional.
func BlockerClosed(username, statusCode string, notes string) Comment {
	if notes != "" {
		return machine("Blocker closed: %s by %s. %s", statusCode, username, notes)
	}
	return machine("Blocker closed: %s by %s. Maintenance work resumed.", statusCode, username)
}

func BlockerUpdated(username, statusCode string) Comment {
	return machine("Blocker updated: %s by %s", statusCode, username)
}

func PartDemandCreated(partName string, quantity float64, username string) Comment {
	return machine("Part demand created: %s x%g by %s", partName, quantity, username)
}

func PartDemandIssued(partName string, quantity, issued, required float64, username string) Comment {
	return machine("Part issued: %s x%g (%g of %g) by %s", partName, quantity, issued, required, username)
}

func PartDemandCancelled(partName string, quantity float64, username string) Comment {
	return machine("Part demand cancelled: %s x%g by %s", partName, quantity, username)
}

func PartDemandIssueUndone(partName string, quantity float64, username string) Comment {
	return machine("Part issue undone: %s x%g by %s", partName, quantity, username)
}

func PartDemandUpdated(partName string, quantity float64, username string) Comment {
	return machine("Part demand updated: %s x%g by %s", partName, quantity, username)
}

func EventStarted(username, start string) Comment {
	return machine("Maintenance started at %s by %s", start, username)
}

func ToolAdded(toolName, actionName, username string) Comment {
	return machine("Tool requirement created: %s for action %q by %s", toolName, actionName, username)
}

// CompletionSummary combines the operator comment with a generated summary
// of the completion record. Meter slots with no reading are skipped.
func CompletionSummary(username, comment string, start, end time.Time, billableHours float64, meters [4]*float64) Comment {
	var b strings.Builder
	fmt.Fprintf(&b, "Maintenance completed by %s.", username)
	if comment != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(strings.TrimSpace(comment), "."))
	}
	fmt.Fprintf(&b, " Window %s to %s, %g billable hours.",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), billableHours)
	for i, m := range meters {
		if m != nil {
			fmt.Fprintf(&b, " Meter %d: %g.", i+1, *m)
		}
	}
	return Comment{Body: b.String(), Provenance: ProvenanceMachine}
}
