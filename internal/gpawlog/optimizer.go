package gpawlog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// OptimizerStep is one row of an ASE optimizer log:
//
//	BFGS:    3 12:00:03      -10.812345*       0.0412
type OptimizerStep struct {
	Optimizer string
	Step      int
	Energy    float64
	Fmax      float64
}

// ReadOptimizer parses an ASE optimizer log. Header lines are skipped.
func ReadOptimizer(r io.Reader) ([]OptimizerStep, error) {
	var steps []OptimizerStep
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		step, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		energy, err := strconv.ParseFloat(strings.TrimRight(fields[3], "*"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: energy: %w", n, err)
		}
		fmax, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: fmax: %w", n, err)
		}
		steps = append(steps, OptimizerStep{
			Optimizer: strings.TrimSuffix(fields[0], ":"),
			Step:      step,
			Energy:    energy,
			Fmax:      fmax,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}
