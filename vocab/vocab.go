// Package vocab builds word <-> id mappings with unigram counts and a
// frequency-filtered view that collapses rare words into <unk>.
package vocab

const (
	// PadToken is always id 0 in both the raw and the filtered table.
	PadToken = "<pad>"
	// UnkToken is always id 1 in both the raw and the filtered table.
	UnkToken = "<unk>"

	// DefaultIgnoreLess is the count at or below which a word is filtered.
	DefaultIgnoreLess = 3
)

// Vocabulary maps tokens to ids and tracks how often each token occurred.
type Vocabulary struct {
	raw      *InternTable
	filtered *InternTable
	unigram  map[string]int
	words    []string
	total    int

	// IgnoreLess is the filtering threshold: words with a count <= IgnoreLess
	// resolve to the filtered <unk> id.
	IgnoreLess int
}

// New creates an empty vocabulary holding only the reserved tokens.
func New() *Vocabulary {
	return &Vocabulary{
		raw:        NewInternTable(PadToken, UnkToken),
		filtered:   NewInternTable(PadToken, UnkToken),
		unigram:    make(map[string]int),
		IgnoreLess: DefaultIgnoreLess,
	}
}

// Build creates a vocabulary from sentences. Ids follow first occurrence, so
// the same sentence order always produces the same mapping.
func Build(sentences [][]string) *Vocabulary {
	v := New()
	v.Add(sentences)
	return v
}

// Add counts every token of sentences and interns the new ones.
func (v *Vocabulary) Add(sentences [][]string) {
	for _, sen := range sentences {
		for _, token := range sen {
			v.unigram[token]++
			v.total++
			if _, seen := v.raw.Lookup(token); !seen {
				v.raw.GetOrCreate(token)
				v.words = append(v.words, token)
			}
		}
	}
}

// PadID returns the raw <pad> id.
func (v *Vocabulary) PadID() int { return 0 }

// UnkID returns the raw <unk> id.
func (v *Vocabulary) UnkID() int { return 1 }

// FilteredPadID returns the filtered <pad> id.
func (v *Vocabulary) FilteredPadID() int { return 0 }

// FilteredUnkID returns the filtered <unk> id.
func (v *Vocabulary) FilteredUnkID() int { return 1 }

// ID returns the raw id of word, or the raw <unk> id for unseen words.
func (v *Vocabulary) ID(word string) int {
	if id, ok := v.raw.Lookup(word); ok {
		return id
	}
	return v.UnkID()
}

// Has reports whether word was seen while building.
func (v *Vocabulary) Has(word string) bool {
	_, ok := v.raw.Lookup(word)
	return ok
}

// IDs maps a sentence to raw ids.
func (v *Vocabulary) IDs(sentence []string) []int {
	out := make([]int, len(sentence))
	for i, tok := range sentence {
		out[i] = v.ID(tok)
	}
	return out
}

// Index returns the filtered id of word. A word whose count exceeds
// IgnoreLess gets its own filtered id, allocated on first lookup; all other
// words, including unknown ones, map to the filtered <unk> id.
func (v *Vocabulary) Index(word string) int {
	if v.unigram[word] > v.IgnoreLess {
		return v.filtered.GetOrCreate(word)
	}
	return v.FilteredUnkID()
}

// Count returns the unigram count of word (0 if unseen).
func (v *Vocabulary) Count(word string) int {
	return v.unigram[word]
}

// CountOf returns the unigram count of the word with raw id.
func (v *Vocabulary) CountOf(id int) int {
	w, ok := v.raw.Word(id)
	if !ok {
		return 0
	}
	return v.unigram[w]
}

// TotalCount returns the number of tokens seen.
func (v *Vocabulary) TotalCount() int {
	return v.total
}

// Words returns the unique corpus words in first-seen order.
func (v *Vocabulary) Words() []string {
	return v.words
}

// Word returns the word with raw id.
func (v *Vocabulary) Word(id int) (string, bool) {
	return v.raw.Word(id)
}

// FilteredWord returns the word with filtered id.
func (v *Vocabulary) FilteredWord(id int) (string, bool) {
	return v.filtered.Word(id)
}

// Len returns the size of the raw table, reserved tokens included.
func (v *Vocabulary) Len() int {
	return v.raw.Len()
}

// FilteredLen returns the size of the filtered table allocated so far.
func (v *Vocabulary) FilteredLen() int {
	return v.filtered.Len()
}

// Frequent returns the words that would get their own filtered id, in
// first-seen order.
func (v *Vocabulary) Frequent() []string {
	var out []string
	for _, w := range v.words {
		if v.unigram[w] > v.IgnoreLess {
			out = append(out, w)
		}
	}
	return out
}
