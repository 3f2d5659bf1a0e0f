// Package sampling draws negative context words from a unigram^0.75 table.
package sampling

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"embedalign/internal/errs"
)

// Power smooths unigram counts before they are turned into probabilities.
const Power = 0.75

// Counts exposes the unigram statistics a table is built from.
type Counts interface {
	Len() int
	CountOf(id int) int
	TotalCount() int
}

// Table is a flat multiset of ids; each id appears round(p(id) * N) times
// where p(id) ∝ count(id)^0.75 and N is the corpus token count.
type Table struct {
	ids []int
}

// NewTable builds the sampling table in id order. Ids whose rounded
// multiplicity is 0 never appear and can never be drawn.
func NewTable(c Counts) (*Table, error) {
	n := c.Len()
	weights := make([]float64, n)
	for id := 0; id < n; id++ {
		weights[id] = math.Pow(float64(c.CountOf(id)), Power)
	}

	z := floats.Sum(weights)
	if z == 0 {
		return nil, errs.ErrEmptyTable
	}
	floats.Scale(float64(c.TotalCount())/z, weights)

	var ids []int
	for id, w := range weights {
		// half-to-even, as numpy rounds
		m := int(math.RoundToEven(w))
		for j := 0; j < m; j++ {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errs.ErrEmptyTable
	}
	return &Table{ids: ids}, nil
}

// Len returns the table size, which is the corpus token count up to rounding.
func (t *Table) Len() int {
	return len(t.ids)
}

// Multiplicity returns how many slots id occupies.
func (t *Table) Multiplicity(id int) int {
	n := 0
	for _, x := range t.ids {
		if x == id {
			n++
		}
	}
	return n
}

// Draw returns one id chosen uniformly from the table.
func (t *Table) Draw(rng *rand.Rand) int {
	return t.ids[rng.IntN(len(t.ids))]
}

// Sample draws an n x k matrix of ids with replacement.
func (t *Table) Sample(rng *rand.Rand, n, k int) [][]int {
	out := make([][]int, n)
	for i := range out {
		row := make([]int, k)
		for j := range row {
			row[j] = t.Draw(rng)
		}
		out[i] = row
	}
	return out
}
