// Package exitcode defines the closed set of failure classifications a
// parse can end in, and the integer exit codes the host surfaces for them.
package exitcode

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/asegrid/internal/structure"
)

// Code is a failure classification. The zero value means success.
type Code int

const (
	OK                 Code = 0
	OutputFiles        Code = 300
	LogFiles           Code = 301
	RelaxNotComplete   Code = 302
	SCFNotComplete     Code = 303
	Unexpected         Code = 305
	BackendDataMissing Code = 306
	BackendInternal    Code = 307
	FermiLevelInvalid  Code = 308
	OutOfWalltime      Code = 400
)

var names = map[Code]string{
	OK:                 "OK",
	OutputFiles:        "ERROR_OUTPUT_FILES",
	LogFiles:           "ERROR_LOG_FILES",
	RelaxNotComplete:   "ERROR_RELAX_NOT_COMPLETE",
	SCFNotComplete:     "ERROR_SCF_NOT_COMPLETE",
	Unexpected:         "ERROR_UNEXPECTED",
	BackendDataMissing: "ERROR_BACKEND_DATA_MISSING",
	BackendInternal:    "ERROR_BACKEND_INTERNAL",
	FermiLevelInvalid:  "ERROR_FERMI_LEVEL_INVALID",
	OutOfWalltime:      "ERROR_OUT_OF_WALLTIME",
}

var messages = map[Code]string{
	OutputFiles:        "one of the output files was missing",
	LogFiles:           "the log file was not found",
	RelaxNotComplete:   "the relaxation did not complete",
	SCFNotComplete:     "the SCF cycle did not converge",
	Unexpected:         "the calculation failed for an unknown reason",
	BackendDataMissing: "a required PAW dataset was not found",
	BackendInternal:    "the backend raised an attribute error",
	FermiLevelInvalid:  "the Fermi level is infinite",
	OutOfWalltime:      "the calculation ran out of walltime",
}

// All returns every failure code in ascending order.
func All() []Code {
	return []Code{
		OutputFiles, LogFiles, RelaxNotComplete, SCFNotComplete, Unexpected,
		BackendDataMissing, BackendInternal, FermiLevelInvalid, OutOfWalltime,
	}
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Message is the human readable description of c.
func (c Code) Message() string {
	return messages[c]
}

// Failure is the error form of a classification. Trajectory carries the
// steps that completed before a relaxation stopped, when any did.
type Failure struct {
	Code       Code
	Trajectory []*structure.Structure
	// Detail is an optional explanation appended to the message.
	Detail string
}

// New returns a Failure for c.
func New(c Code) *Failure {
	return &Failure{Code: c}
}

// Newf returns a Failure for c with a formatted detail.
func Newf(c Code, format string, args ...any) *Failure {
	return &Failure{Code: c, Detail: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", f.Code, int(f.Code), f.Code.Message())
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// Is lets errors.Is match a Failure against another Failure with the same
// code, e.g. errors.Is(err, exitcode.New(exitcode.SCFNotComplete)).
func (f *Failure) Is(target error) bool {
	var t *Failure
	if errors.As(target, &t) {
		return t.Code == f.Code
	}
	return false
}

// LastStep returns the final trajectory step, or nil when there is none.
func (f *Failure) LastStep() *structure.Structure {
	if len(f.Trajectory) == 0 {
		return nil
	}
	return f.Trajectory[len(f.Trajectory)-1]
}

// As extracts the Failure from err's chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Of returns the classification carried by err: OK for nil, Unexpected for
// any error that is not a Failure.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if f, ok := As(err); ok {
		return f.Code
	}
	return Unexpected
}
