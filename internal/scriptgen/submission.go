package scriptgen

import (
	"fmt"

	"github.com/specialistvlad/asegrid/internal/argtree"
)

// Submission describes how the execution environment runs one attempt.
type Submission struct {
	// Cmdline is passed to the code executable. Its last token is always
	// the script name.
	Cmdline    []string
	ScriptName string
	// StdoutName receives the process's standard output, which is where
	// the backend writes its log.
	StdoutName string
	// Stage lists the generated files the environment must write into the
	// working directory before starting the process.
	Stage []string
	// Retrieve lists the artifacts to collect after the process ends.
	Retrieve   []string
	ParserName string
}

func submission(sr *argtree.Reader, in *Input, relax bool) (Submission, error) {
	f := in.Files
	sub := Submission{
		ScriptName: f.Script,
		StdoutName: f.Log,
		Stage:      []string{f.Script, f.InputStructure},
		ParserName: in.Options.ParserName,
	}

	if v, ok := sr.Take(SettingCmdline); ok {
		seq, ok := v.(argtree.Sequence)
		if !ok {
			return Submission{}, fmt.Errorf("%w: got %s", ErrInvalidCmdline, kind(v))
		}
		for i, el := range seq {
			tok, err := token(el)
			if err != nil {
				return Submission{}, fmt.Errorf("%w: element %d: %w", ErrInvalidCmdline, i, err)
			}
			sub.Cmdline = append(sub.Cmdline, tok)
		}
	}
	sub.Cmdline = append(sub.Cmdline, f.Script)

	sub.Retrieve = []string{f.Results, f.OutputStructure, f.Log}
	if relax {
		sub.Retrieve = append(sub.Retrieve, f.OptimizerLog)
	}
	if in.Options.WriteCheckpoint {
		sub.Retrieve = append(sub.Retrieve, f.Checkpoint)
	}
	if v, ok := sr.Take(SettingAdditionalRetrieve); ok {
		seq, ok := v.(argtree.Sequence)
		if !ok {
			return Submission{}, fmt.Errorf("%w: got %s", ErrInvalidRetrieveList, kind(v))
		}
		extra, ok := allStrings(seq)
		if !ok {
			return Submission{}, ErrInvalidRetrieveList
		}
		sub.Retrieve = append(sub.Retrieve, extra...)
	}
	return sub, nil
}

// token renders a command-line element: strings verbatim, numbers and
// bools as their literal text.
func token(v argtree.Value) (string, error) {
	switch t := v.(type) {
	case argtree.String:
		return string(t), nil
	case argtree.Number:
		return t.String(), nil
	case argtree.Bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("%s is not a command-line token", kind(v))
	}
}
