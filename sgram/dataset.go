package sgram

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"embedalign/sampling"
	"embedalign/vocab"
)

// SkipGram is a word-pair dataset with a negative sampling table.
type SkipGram struct {
	Vocab *vocab.Vocabulary
	Data  []Pair
	Table *sampling.Table
}

// NewSkipGram builds the vocabulary, the pairs and the sampling table.
func NewSkipGram(sentences [][]string, window int) (*SkipGram, error) {
	v := vocab.Build(sentences)
	table, err := sampling.NewTable(v)
	if err != nil {
		return nil, err
	}
	return &SkipGram{
		Vocab: v,
		Data:  Pairs(sentences, v, window),
		Table: table,
	}, nil
}

// Minibatches returns the pairs in order, batchSize at a time.
func (s *SkipGram) Minibatches(batchSize int) [][]Pair {
	return Batches(s.Data, batchSize)
}

// Negatives draws k negative context ids for each pair.
func (s *SkipGram) Negatives(rng *rand.Rand, pairs []Pair, k int) [][]int {
	return s.Table.Sample(rng, len(pairs), k)
}

// BagSkipGram is a dataset of fixed-width [center, contexts..., pad...] rows.
type BagSkipGram struct {
	Vocab  *vocab.Vocabulary
	Data   [][]int
	Window int
}

// NewBagSkipGram builds the vocabulary and the bag windows.
func NewBagSkipGram(sentences [][]string, window int) *BagSkipGram {
	v := vocab.Build(sentences)
	return &BagSkipGram{
		Vocab:  v,
		Data:   Windows(sentences, v, window),
		Window: window,
	}
}

// Minibatches returns the windows in order, batchSize at a time.
func (b *BagSkipGram) Minibatches(batchSize int) [][][]int {
	return Batches(b.Data, batchSize)
}

// Centers returns the center column of a batch.
func (b *BagSkipGram) Centers(batch [][]int) []int {
	out := make([]int, len(batch))
	for i, row := range batch {
		out[i] = row[0]
	}
	return out
}

// OneHot encodes ids as a len(ids) x vocabulary-size matrix.
func (b *BagSkipGram) OneHot(ids []int) *mat.Dense {
	return OneHot(ids, b.Vocab.Len())
}

// ContextCounts encodes the context part of each window as a row of counts,
// ignoring padding.
func (b *BagSkipGram) ContextCounts(batch [][]int) *mat.Dense {
	if len(batch) == 0 {
		return &mat.Dense{}
	}
	pad := b.Vocab.PadID()
	m := mat.NewDense(len(batch), b.Vocab.Len(), nil)
	for i, row := range batch {
		for _, id := range row[1:] {
			if id == pad {
				continue
			}
			m.Set(i, id, m.At(i, id)+1)
		}
	}
	return m
}

// OneHot encodes ids as a len(ids) x size matrix with a single 1 per row.
func OneHot(ids []int, size int) *mat.Dense {
	if len(ids) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(ids), size, nil)
	for i, id := range ids {
		m.Set(i, id, 1)
	}
	return m
}
