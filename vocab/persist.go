package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"embedalign/internal/errs"
)

// Save writes the four index files <prefix>_w2i.json, <prefix>_i2w.json,
// <prefix>_w2i_f.json and <prefix>_i2w_f.json into dir.
func (v *Vocabulary) Save(dir, prefix string) error {
	files := []struct {
		suffix string
		data   interface{}
	}{
		{"_w2i.json", v.raw.WordToID()},
		{"_i2w.json", v.raw.IDToWord()},
		{"_w2i_f.json", v.filtered.WordToID()},
		{"_i2w_f.json", v.filtered.IDToWord()},
	}

	for _, f := range files {
		path := filepath.Join(dir, prefix+f.suffix)
		if err := saveJSON(path, f.data); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	}
	return nil
}

// Load restores the raw and filtered tables written by Save. Unigram counts
// are not persisted, so Index on a loaded vocabulary only resolves words
// that already have a filtered id.
func Load(dir, prefix string) (*Vocabulary, error) {
	var raw, filtered map[string]int
	if err := loadJSON(filepath.Join(dir, prefix+"_w2i.json"), &raw); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, prefix+"_w2i_f.json"), &filtered); err != nil {
		return nil, err
	}

	rawTable, err := tableFromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%s_w2i.json: %w", prefix, err)
	}
	filteredTable, err := tableFromMap(filtered)
	if err != nil {
		return nil, fmt.Errorf("%s_w2i_f.json: %w", prefix, err)
	}

	v := &Vocabulary{
		raw:        rawTable,
		filtered:   filteredTable,
		unigram:    make(map[string]int),
		IgnoreLess: DefaultIgnoreLess,
	}
	for id := 2; id < rawTable.Len(); id++ {
		w, _ := rawTable.Word(id)
		v.words = append(v.words, w)
	}
	// Words that own a filtered id are frequent by construction.
	for id := 2; id < filteredTable.Len(); id++ {
		w, _ := filteredTable.Word(id)
		v.unigram[w] = v.IgnoreLess + 1
	}
	return v, nil
}

// tableFromMap rebuilds an intern table, requiring ids to be 0..n-1 with the
// reserved tokens first.
func tableFromMap(m map[string]int) (*InternTable, error) {
	type entry struct {
		word string
		id   int
	}
	entries := make([]entry, 0, len(m))
	for w, id := range m {
		entries = append(entries, entry{w, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	t := NewInternTable()
	for i, e := range entries {
		if e.id != i {
			return nil, fmt.Errorf("%w: id %d for %q is not contiguous", errs.ErrShapeMismatch, e.id, e.word)
		}
		t.GetOrCreate(e.word)
	}
	if w, _ := t.Word(0); w != PadToken {
		return nil, fmt.Errorf("%w: id 0 is %q, want %s", errs.ErrShapeMismatch, w, PadToken)
	}
	if w, _ := t.Word(1); w != UnkToken {
		return nil, fmt.Errorf("%w: id 1 is %q, want %s", errs.ErrShapeMismatch, w, UnkToken)
	}
	return t, nil
}

func saveJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func loadJSON(path string, data interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewDecoder(f).Decode(data)
}
