package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/specialistvlad/asegrid/internal/restart"
	"github.com/specialistvlad/asegrid/internal/resultparse"
	"github.com/specialistvlad/asegrid/internal/scriptgen"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func render(t table.Writer) string {
	return t.Render() + "\n"
}

func submissionTable(job string, out *scriptgen.Output) string {
	t := newTable("Job " + job)
	t.AppendRows([]table.Row{
		{"command line", strings.Join(out.Submission.Cmdline, " ")},
		{"stdout", out.Submission.StdoutName},
		{"staged", strings.Join(out.Submission.Stage, ", ")},
		{"retrieve", strings.Join(out.Submission.Retrieve, ", ")},
		{"parser", out.Submission.ParserName},
		{"relax", out.Relax},
	})
	if len(out.Residual) > 0 {
		t.AppendRow(table.Row{"unused", strings.Join(out.Residual, ", ")})
	}
	return render(t)
}

func recordTable(rec *resultparse.Record) string {
	t := newTable("Result")
	t.AppendHeader(table.Row{"Key", "Kind", "Value"})
	for _, k := range rec.ParameterNames() {
		t.AppendRow(table.Row{k, "scalar", fmt.Sprint(rec.Parameters[k])})
	}
	for _, k := range rec.ArrayNames() {
		shape := rec.Arrays[k].Shape()
		dims := make([]string, len(shape))
		for i, d := range shape {
			dims[i] = fmt.Sprint(d)
		}
		t.AppendRow(table.Row{k, "array", "shape (" + strings.Join(dims, ", ") + ")"})
	}
	if rec.Structure != nil {
		t.AppendRow(table.Row{"structure", "structure", rec.Structure.Formula()})
	}
	if len(rec.Trajectory) > 0 {
		t.AppendRow(table.Row{"trajectory", "structures", fmt.Sprintf("%d steps", len(rec.Trajectory))})
	}
	for _, w := range rec.Warnings {
		t.AppendRow(table.Row{"warning", "text", strings.TrimSpace(w)})
	}
	return render(t)
}

func outcomeTable(outcomes []*restart.Outcome) string {
	t := newTable("Jobs")
	t.AppendHeader(table.Row{"Job", "Result", "Code", "Attempts", "Structure"})
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		formula := ""
		if o.Structure != nil {
			formula = o.Structure.Formula()
		}
		t.AppendRow(table.Row{o.Job, o.Result(), fmt.Sprintf("%s (%d)", o.Code(), int(o.Code())), o.Attempts, formula})
	}
	return render(t)
}
