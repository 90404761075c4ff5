package hcl

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// translator converts decoded blocks of one file into the agnostic model.
// src is the file content, used to tell `300` from `300.0`.
type translator struct {
	src []byte
}

// job converts the HCL-specific job schema into the agnostic model.
func (t *translator) job(b *jobBlock, file string) (*config.Job, error) {
	job := config.NewJob(b.Name)
	job.Source = file

	if b.StructureFile != nil {
		job.StructureFile = *b.StructureFile
	}
	if b.Structure != nil {
		if job.StructureFile != "" {
			return nil, fmt.Errorf("%w: both structure_file and a structure block are set", config.ErrInvalidJob)
		}
		s, err := config.StructureFrom(b.Structure.Symbols, b.Structure.Positions, b.Structure.Cell, b.Structure.PBC)
		if err != nil {
			return nil, err
		}
		job.Structure = s
	}

	mesh, err := config.MeshFrom(b.Kpoints, b.KpointsOffset)
	if err != nil {
		return nil, err
	}
	job.Kpoints = mesh

	if b.MaxAttempts != nil {
		job.MaxAttempts = *b.MaxAttempts
	}

	if job.Parameters, err = t.mapping(b.Parameters, "parameters"); err != nil {
		return nil, err
	}
	if job.Settings, err = t.mapping(b.Settings, "settings"); err != nil {
		return nil, err
	}

	if o := b.Options; o != nil {
		setIf(&job.Options.Code, o.Code)
		setIf(&job.Options.WithMPI, o.WithMPI)
		setIf(&job.Options.WriteCheckpoint, o.WriteCheckpoint)
		setIf(&job.Options.CheckpointInterval, o.CheckpointInterval)
		setIf(&job.Options.ParserName, o.Parser)
		if o.MaxWallclockSeconds != nil {
			job.Options.MaxWallclock = time.Duration(*o.MaxWallclockSeconds) * time.Second
		}
	}

	if f := b.Files; f != nil {
		setIf(&job.Files.Script, f.Script)
		setIf(&job.Files.Results, f.Results)
		setIf(&job.Files.Log, f.Log)
		setIf(&job.Files.InputStructure, f.InputStructure)
		setIf(&job.Files.OutputStructure, f.OutputStructure)
		setIf(&job.Files.OptimizerLog, f.OptimizerLog)
		setIf(&job.Files.Checkpoint, f.Checkpoint)
	}

	return job, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// mapping converts an optional attribute that must hold an object.
func (t *translator) mapping(expr hcl.Expression, attr string) (*argtree.Mapping, error) {
	if expr == nil {
		return argtree.NewMapping(), nil
	}
	v, err := t.value(expr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", attr, err)
	}
	switch m := v.(type) {
	case argtree.None:
		return argtree.NewMapping(), nil
	case *argtree.Mapping:
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an object, got %T", config.ErrInvalidJob, attr, v)
	}
}

// value walks the syntax tree rather than evaluating it, because an
// evaluated cty object has lost the order its keys were written in.
func (t *translator) value(expr hcl.Expression) (argtree.Value, error) {
	switch e := expr.(type) {
	case *hclsyntax.ObjectConsExpr:
		entries := make([]argtree.Entry, 0, len(e.Items))
		for _, item := range e.Items {
			kv, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() {
				return nil, diags
			}
			if kv.IsNull() || kv.Type() != cty.String {
				return nil, fmt.Errorf("%s: object keys must be strings", item.KeyExpr.Range())
			}
			v, err := t.value(item.ValueExpr)
			if err != nil {
				return nil, err
			}
			entries = append(entries, argtree.Entry{Key: kv.AsString(), Value: v})
		}
		obj, err := argtree.Object(entries)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Range(), err)
		}
		return obj, nil

	case *hclsyntax.TupleConsExpr:
		seq := make(argtree.Sequence, 0, len(e.Exprs))
		for _, el := range e.Exprs {
			v, err := t.value(el)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	return t.fromCty(val, t.text(expr.Range()))
}

// fromCty converts an evaluated leaf. Collections only show up here when
// produced by something other than a constructor, so their key order is
// cty's sorted order.
func (t *translator) fromCty(val cty.Value, text string) (argtree.Value, error) {
	if val.IsNull() {
		return argtree.None{}, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value %q is not known at load time", text)
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return argtree.String(val.AsString()), nil
	case ty == cty.Bool:
		return argtree.Bool(val.True()), nil
	case ty == cty.Number:
		var i int64
		if !strings.ContainsAny(text, ".eE") && gocty.FromCtyValue(val, &i) == nil {
			return argtree.Int(i), nil
		}
		var f float64
		if err := gocty.FromCtyValue(val, &f); err != nil {
			return nil, err
		}
		return argtree.Float(f), nil
	case ty.IsObjectType() || ty.IsMapType():
		var entries []argtree.Entry
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			conv, err := t.fromCty(v, "")
			if err != nil {
				return nil, err
			}
			entries = append(entries, argtree.Entry{Key: k.AsString(), Value: conv})
		}
		return argtree.Object(entries)
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var seq argtree.Sequence
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			conv, err := t.fromCty(v, "")
			if err != nil {
				return nil, err
			}
			seq = append(seq, conv)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
	}
}

func (t *translator) text(r hcl.Range) string {
	if r.Start.Byte < 0 || r.End.Byte > len(t.src) || r.Start.Byte > r.End.Byte {
		return ""
	}
	return string(t.src[r.Start.Byte:r.End.Byte])
}
