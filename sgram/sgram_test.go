package sgram

import (
	"math/rand/v2"
	"reflect"
	"testing"

	"embedalign/vocab"
)

func TestSkipGramPairsExample(t *testing.T) {
	v := vocab.Build([][]string{{"a", "b", "c"}})

	got := Pairs([][]string{{"a", "b", "c"}}, v, 1)
	// a=2, b=3, c=4 after <pad>=0, <unk>=1
	want := []Pair{{2, 3}, {3, 2}, {3, 4}, {4, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs = %v, want %v", got, want)
	}
}

func TestSkipGramPairsOrder(t *testing.T) {
	got := SkipGramPairs([]int{10, 11, 12, 13}, 2)
	want := []Pair{
		{10, 11}, {10, 12},
		{11, 10}, {11, 12}, {11, 13},
		{12, 10}, {12, 11}, {12, 13},
		{13, 11}, {13, 12},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SkipGramPairs = %v, want %v", got, want)
	}
}

func TestSkipGramPairCount(t *testing.T) {
	for n := 0; n <= 9; n++ {
		for w := 1; w <= 4; w++ {
			ids := make([]int, n)
			for i := range ids {
				ids[i] = i
			}
			got := len(SkipGramPairs(ids, w))
			if got != PairCount(n, w) {
				t.Errorf("n=%d w=%d: %d pairs, formula says %d", n, w, got, PairCount(n, w))
			}
		}
	}
}

func TestBagWindows(t *testing.T) {
	got := BagWindows([]int{5, 6, 7}, 2, 0)
	want := [][]int{
		{5, 6, 7, 0, 0},
		{6, 5, 7, 0, 0},
		{7, 5, 6, 0, 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BagWindows = %v, want %v", got, want)
	}
}

func TestBagWindowsDropsCenterOnlyRows(t *testing.T) {
	if got := BagWindows([]int{9}, 2, 0); len(got) != 0 {
		t.Errorf("single-token sentence should yield no rows, got %v", got)
	}

	rows := BagWindows([]int{1, 2, 3, 4, 5, 6}, 1, 0)
	for _, row := range rows {
		if len(row) != 3 {
			t.Errorf("row %v has width %d, want 3", row, len(row))
		}
	}
}

func TestBatches(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5, 6, 7}

	got := Batches(rows, 3)
	want := [][]int{{1, 2, 3}, {4, 5, 6}, {7}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Batches = %v, want %v", got, want)
	}

	if Batches(rows, 0) != nil {
		t.Error("non-positive batch size should give no batches")
	}
}

func TestSkipGramDataset(t *testing.T) {
	sentences := [][]string{{"a", "b", "c"}, {"b", "c", "d", "a"}}
	ds, err := NewSkipGram(sentences, 2)
	if err != nil {
		t.Fatalf("NewSkipGram: %v", err)
	}

	if len(ds.Data) != PairCount(3, 2)+PairCount(4, 2) {
		t.Errorf("unexpected pair count %d", len(ds.Data))
	}

	batches := ds.Minibatches(4)
	first := batches[0]
	negs := ds.Negatives(rand.New(rand.NewPCG(3, 3)), first, 5)
	if len(negs) != len(first) {
		t.Fatalf("expected %d rows of negatives, got %d", len(first), len(negs))
	}
	for _, row := range negs {
		for _, id := range row {
			if ds.Vocab.CountOf(id) == 0 {
				t.Errorf("negative %d has zero frequency", id)
			}
		}
	}
}

func TestBagSkipGramDataset(t *testing.T) {
	ds := NewBagSkipGram([][]string{{"x"}, {"a", "b"}}, 1)

	if len(ds.Data) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(ds.Data))
	}

	batch := ds.Minibatches(8)[0]
	centers := ds.Centers(batch)
	if !reflect.DeepEqual(centers, []int{ds.Vocab.ID("a"), ds.Vocab.ID("b")}) {
		t.Errorf("Centers = %v", centers)
	}

	oh := ds.OneHot(centers)
	r, c := oh.Dims()
	if r != 2 || c != ds.Vocab.Len() {
		t.Fatalf("OneHot dims %dx%d", r, c)
	}
	if oh.At(0, ds.Vocab.ID("a")) != 1 || oh.At(1, ds.Vocab.ID("b")) != 1 {
		t.Error("OneHot should mark the center ids")
	}

	ctx := ds.ContextCounts(batch)
	if ctx.At(0, ds.Vocab.ID("b")) != 1 || ctx.At(0, ds.Vocab.PadID()) != 0 {
		t.Error("ContextCounts should count contexts and skip padding")
	}
}
