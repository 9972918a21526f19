package alive

import (
	"strings"
)

// Verification diagnostics. Each is a single-line message; an empty
// collector means the transformation verified.
const (
	ErrSourceMoreDefined = "Source is more defined than target"
	ErrTargetMorePoison  = "Target is more poisonous than source"
	ErrValueMismatch     = "value mismatch"
	ErrSourceReturns     = "Source returns but target doesn't"
	ErrTargetReturns     = "Target returns but source doesn't"
	ErrCouldNotType      = "Unable to type the transformation"
)

// Errors accumulates human-readable diagnostics in order of discovery.
type Errors struct {
	errs []string
}

// Add appends a diagnostic.
func (e *Errors) Add(msg string) {
	e.errs = append(e.errs, msg)
}

// Empty returns true if no diagnostics were recorded.
func (e *Errors) Empty() bool {
	return len(e.errs) == 0
}

// Errs returns a copy of the recorded diagnostics.
func (e *Errors) Errs() []string {
	errs := make([]string, len(e.errs))
	copy(errs, e.errs)
	return errs
}

// String returns the diagnostics one per line, each prefixed with "ERROR: "
// and terminated by a newline.
func (e *Errors) String() string {
	var sb strings.Builder
	for _, msg := range e.errs {
		sb.WriteString("ERROR: ")
		sb.WriteString(msg)
		sb.WriteRune('\n')
	}
	return sb.String()
}
