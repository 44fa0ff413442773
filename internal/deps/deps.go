package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is an external binary a stage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after a PATH lookup.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func probe(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	st := Status{Requirement: req}
	switch {
	case req.Command == "":
		st.Detail = "command not configured"
	default:
		if _, err := lookPath(req.Command); err != nil {
			st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		} else {
			st.Available = true
		}
	}
	return st
}

// CheckBinaries looks up every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = probe(req)
	}
	return out
}

// Summarize is ready when no required binary is missing; otherwise detail
// names each missing one.
func Summarize(statuses []Status) (ready bool, detail string) {
	var b strings.Builder
	for _, st := range statuses {
		if st.Available || st.Optional {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%s)", st.Name, st.Detail)
	}
	if b.Len() == 0 {
		return true, ""
	}
	return false, "missing " + b.String()
}
