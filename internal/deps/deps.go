package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary the engine shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus what was found on this host.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Lookup resolves req.Command on PATH. An available status carries the
// resolved path in Detail.
func Lookup(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Detail = path
	return status
}
