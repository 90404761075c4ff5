// Package gpawlog reads the plain-text log GPAW writes during a calculation.
// A log holds one step per "Positions:" block; a relaxation produces one
// step per optimizer iteration, and only steps whose SCF cycle finished
// carry an energy.
package gpawlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/asegrid/internal/structure"
)

// ErrNoSteps is returned when a log contains no atomic positions at all.
var ErrNoSteps = errors.New("log contains no steps")

// Contribution is one line of the energy breakdown.
type Contribution struct {
	Name  string
	Value float64
}

// Step is everything the log reports for one set of positions.
type Step struct {
	Structure *structure.Structure

	// Energy is the extrapolated energy when printed, else the free energy.
	Energy        *float64
	FreeEnergy    *float64
	Contributions []Contribution

	Forces      [][3]float64
	Stress      *[3][3]float64
	Dipole      *[3]float64
	Magmoms     []float64
	TotalMagmom *float64
	// FermiLevels has one entry, or two for a fixed-moment calculation.
	FermiLevels []float64
	// Eigenvalues are those of the first k-point and spin channel.
	Eigenvalues []float64
}

// Converged reports whether the SCF cycle of the step finished.
func (s *Step) Converged() bool {
	return s.Energy != nil
}

// FermiEnergy returns the first Fermi level.
func (s *Step) FermiEnergy() (float64, bool) {
	if len(s.FermiLevels) == 0 {
		return 0, false
	}
	return s.FermiLevels[0], true
}

// Log is a parsed GPAW text log.
type Log struct {
	Steps []*Step
}

// Completed returns the steps whose SCF cycle finished, in order.
func (l *Log) Completed() []*Step {
	var out []*Step
	for _, s := range l.Steps {
		if s.Converged() {
			out = append(out, s)
		}
	}
	return out
}

// Trajectory returns the structures of the completed steps.
func (l *Log) Trajectory() []*structure.Structure {
	steps := l.Completed()
	out := make([]*structure.Structure, len(steps))
	for i, s := range steps {
		out[i] = s.Structure
	}
	return out
}

// Final returns the last completed step.
func (l *Log) Final() (*Step, bool) {
	steps := l.Completed()
	if len(steps) == 0 {
		return nil, false
	}
	return steps[len(steps)-1], true
}

// Read parses a GPAW text log.
func Read(r io.Reader) (*Log, error) {
	p := &parser{sc: bufio.NewScanner(r)}
	p.sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if err := p.run(); err != nil {
		return nil, err
	}
	if len(p.log.Steps) == 0 {
		return nil, ErrNoSteps
	}
	return &p.log, nil
}

type parser struct {
	sc     *bufio.Scanner
	lineNo int
	log    Log
	cur    *Step
	cell   [3][3]float64
	pbc    [3]bool
}

func (p *parser) next() (string, bool) {
	if !p.sc.Scan() {
		return "", false
	}
	p.lineNo++
	return p.sc.Text(), true
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.lineNo, fmt.Sprintf(format, args...))
}

func (p *parser) run() error {
	for {
		line, ok := p.next()
		if !ok {
			return p.sc.Err()
		}
		trimmed := strings.TrimSpace(line)

		var err error
		switch {
		case trimmed == "Positions:":
			err = p.positions()
		case trimmed == "Unit cell:":
			err = p.unitCell()
		case p.cur == nil:
			// Everything else belongs to a step.
		case strings.HasPrefix(trimmed, "Energy contributions relative to reference atoms"):
			err = p.contributions()
		case strings.HasPrefix(trimmed, "Free energy:"):
			err = p.scalar(trimmed, &p.cur.FreeEnergy)
			if err == nil && p.cur.Energy == nil {
				v := *p.cur.FreeEnergy
				p.cur.Energy = &v
			}
		case strings.HasPrefix(trimmed, "Extrapolated:"):
			err = p.scalar(trimmed, &p.cur.Energy)
		case strings.HasPrefix(trimmed, "Fermi level:"), strings.HasPrefix(trimmed, "Fermi levels:"):
			p.cur.FermiLevels, err = floatsAfterColon(trimmed)
		case trimmed == "Forces in eV/Ang:":
			err = p.forces()
		case trimmed == "Stress tensor:":
			err = p.stress()
		case strings.HasPrefix(trimmed, "Dipole moment:"):
			err = p.dipole(trimmed)
		case strings.HasPrefix(trimmed, "Total magnetic moment:"):
			err = p.scalar(trimmed, &p.cur.TotalMagmom)
		case trimmed == "Local magnetic moments:":
			err = p.magmoms()
		case isEigenHeader(trimmed):
			err = p.eigenvalues(trimmed)
		}
		if err != nil {
			return err
		}
	}
}

// positions starts a new step. The cell is carried over from earlier steps
// because GPAW only prints it when it changes.
func (p *parser) positions() error {
	s := &structure.Structure{Cell: p.cell, PBC: p.pbc}
	for {
		line, ok := p.next()
		fields := strings.Fields(line)
		if !ok || len(fields) == 0 {
			break
		}
		if len(fields) < 5 {
			return p.errorf("short position row %q", line)
		}
		pos, err := parseFloats(fields[2:5])
		if err != nil {
			return p.errorf("position row: %v", err)
		}
		s.Symbols = append(s.Symbols, fields[1])
		s.Positions = append(s.Positions, [3]float64{pos[0], pos[1], pos[2]})
	}
	p.cur = &Step{Structure: s}
	p.log.Steps = append(p.log.Steps, p.cur)
	return nil
}

// unitCell reads rows like `  1. axis:    yes    4.000000    0.000000    0.000000    20     0.2000`.
func (p *parser) unitCell() error {
	rows := 0
	for rows < 3 {
		line, ok := p.next()
		if !ok {
			return p.errorf("unit cell block ends after %d axes", rows)
		}
		fields := strings.Fields(line)
		if len(fields) < 6 || fields[1] != "axis:" {
			continue
		}
		axis, err := strconv.Atoi(strings.TrimSuffix(fields[0], "."))
		if err != nil || axis < 1 || axis > 3 {
			return p.errorf("bad axis label %q", fields[0])
		}
		vec, err := parseFloats(fields[3:6])
		if err != nil {
			return p.errorf("unit cell: %v", err)
		}
		p.cell[axis-1] = [3]float64{vec[0], vec[1], vec[2]}
		p.pbc[axis-1] = fields[2] == "yes"
		rows++
	}
	if p.cur != nil {
		p.cur.Structure.Cell = p.cell
		p.cur.Structure.PBC = p.pbc
	}
	return nil
}

// contributions reads `Name: value` rows up to the dashed separator.
func (p *parser) contributions() error {
	p.cur.Contributions = nil
	for {
		line, ok := p.next()
		if !ok {
			return nil
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "---") {
			return nil
		}
		if trimmed == "" {
			continue
		}
		i := strings.LastIndex(trimmed, ":")
		if i < 0 {
			return p.errorf("energy contribution %q has no value", trimmed)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(trimmed[i+1:]), 64)
		if err != nil {
			return p.errorf("energy contribution %q: %v", trimmed, err)
		}
		p.cur.Contributions = append(p.cur.Contributions, Contribution{Name: strings.TrimSpace(trimmed[:i]), Value: v})
	}
}

func (p *parser) scalar(line string, dst **float64) error {
	vals, err := floatsAfterColon(line)
	if err != nil || len(vals) == 0 {
		return p.errorf("no value in %q", line)
	}
	v := vals[0]
	*dst = &v
	return nil
}

func (p *parser) forces() error {
	p.cur.Forces = nil
	for {
		line, ok := p.next()
		fields := strings.Fields(line)
		if !ok || len(fields) == 0 {
			return nil
		}
		if len(fields) < 5 {
			return p.errorf("short force row %q", line)
		}
		f, err := parseFloats(fields[2:5])
		if err != nil {
			return p.errorf("force row: %v", err)
		}
		p.cur.Forces = append(p.cur.Forces, [3]float64{f[0], f[1], f[2]})
	}
}

func (p *parser) stress() error {
	var st [3][3]float64
	for row := 0; row < 3; {
		line, ok := p.next()
		if !ok {
			return p.errorf("stress tensor ends after %d rows", row)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return p.errorf("short stress row %q", line)
		}
		v, err := parseFloats(fields[:3])
		if err != nil {
			return p.errorf("stress row: %v", err)
		}
		st[row] = [3]float64{v[0], v[1], v[2]}
		row++
	}
	p.cur.Stress = &st
	return nil
}

// dipole reads `Dipole moment: (0.000000, 0.000000, -0.123456) |e|*Ang`.
func (p *parser) dipole(line string) error {
	open, end := strings.Index(line, "("), strings.Index(line, ")")
	if open < 0 || end < open {
		return p.errorf("malformed dipole %q", line)
	}
	v, err := parseFloats(strings.Split(line[open+1:end], ","))
	if err != nil || len(v) != 3 {
		return p.errorf("malformed dipole %q", line)
	}
	p.cur.Dipole = &[3]float64{v[0], v[1], v[2]}
	return nil
}

// magmoms reads `  0 Fe   2.213451` rows.
func (p *parser) magmoms() error {
	p.cur.Magmoms = nil
	for {
		line, ok := p.next()
		fields := strings.Fields(line)
		if !ok || len(fields) == 0 {
			return nil
		}
		if len(fields) < 3 {
			return p.errorf("short magnetic moment row %q", line)
		}
		v, err := strconv.ParseFloat(strings.Trim(fields[len(fields)-1], "()"), 64)
		if err != nil {
			return p.errorf("magnetic moment row: %v", err)
		}
		p.cur.Magmoms = append(p.cur.Magmoms, v)
	}
}

func isEigenHeader(line string) bool {
	fields := strings.Fields(line)
	return len(fields) >= 3 && (fields[0] == "Band" || (fields[0] == "Kpt" && fields[1] == "Band")) &&
		slices.Contains(fields, "Eigenvalues")
}

// eigenvalues reads the band table. Only the first k-point and the first
// eigenvalue column are kept.
func (p *parser) eigenvalues(header string) error {
	cols := strings.Fields(header)
	eigCol, kptCol := -1, -1
	for i, c := range cols {
		if c == "Eigenvalues" && eigCol < 0 {
			eigCol = i
		}
		if c == "Kpt" {
			kptCol = i
		}
	}
	p.cur.Eigenvalues = nil
	for {
		line, ok := p.next()
		fields := strings.Fields(line)
		if !ok || len(fields) == 0 {
			return nil
		}
		if len(fields) <= eigCol {
			return p.errorf("short eigenvalue row %q", line)
		}
		if kptCol >= 0 && fields[kptCol] != "0" {
			continue
		}
		v, err := strconv.ParseFloat(fields[eigCol], 64)
		if err != nil {
			return p.errorf("eigenvalue row: %v", err)
		}
		p.cur.Eigenvalues = append(p.cur.Eigenvalues, v)
	}
}

func floatsAfterColon(line string) ([]float64, error) {
	i := strings.Index(line, ":")
	if i < 0 {
		return nil, fmt.Errorf("no ':' in %q", line)
	}
	rest := strings.NewReplacer(",", " ").Replace(line[i+1:])
	var out []float64
	for _, f := range strings.Fields(rest) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			// Units and other trailing words end the value list.
			break
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no number in %q", line)
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("value %q is not a number", f)
		}
		out[i] = v
	}
	return out, nil
}
