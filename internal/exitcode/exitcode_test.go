package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/specialistvlad/asegrid/internal/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes_AreDistinctAndNamed(t *testing.T) {
	t.Parallel()

	seen := map[Code]bool{}
	for _, c := range All() {
		assert.False(t, seen[c], "duplicate code %d", c)
		seen[c] = true
		assert.NotContains(t, c.String(), "Code(", "code %d has no name", c)
		assert.NotEmpty(t, c.Message())
	}
	assert.Equal(t, "Code(999)", Code(999).String())
}

func TestFailure_ErrorsAs(t *testing.T) {
	t.Parallel()

	step := &structure.Structure{Symbols: []string{"H"}, Positions: [][3]float64{{0, 0, 1}}}
	err := fmt.Errorf("parsing attempt 2: %w", &Failure{
		Code:       RelaxNotComplete,
		Trajectory: []*structure.Structure{{}, step},
	})

	f, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, RelaxNotComplete, f.Code)
	assert.Same(t, step, f.LastStep())
	assert.True(t, errors.Is(err, New(RelaxNotComplete)))
	assert.False(t, errors.Is(err, New(SCFNotComplete)))
	assert.Contains(t, err.Error(), "ERROR_RELAX_NOT_COMPLETE (302)")
}

func TestOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Unexpected, Of(errors.New("boom")))
	assert.Equal(t, FermiLevelInvalid, Of(Newf(FermiLevelInvalid, "got %v", "inf")))
	assert.Nil(t, New(Unexpected).LastStep())
}
