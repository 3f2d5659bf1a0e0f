// Package corpus reads one-sentence-per-line text files into token lists.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"embedalign/internal/errs"
)

// Reader streams lines and tokenizes each one into a sentence.
type Reader struct {
	Tokenizer *Tokenizer
	// ReadLines caps the number of lines consumed; 0 reads everything.
	ReadLines int
}

// NewReader creates a reader for the given tokenizer and line cap.
func NewReader(tok *Tokenizer, readLines int) *Reader {
	return &Reader{Tokenizer: tok, ReadLines: readLines}
}

// ReadFile tokenizes the corpus at path.
func (r *Reader) ReadFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	sentences, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return sentences, nil
}

// Read tokenizes every line of in. Each line yields exactly one sentence,
// possibly empty, so two parallel corpora stay line-aligned.
func (r *Reader) Read(in io.Reader) ([][]string, error) {
	tok := r.Tokenizer
	if tok == nil {
		tok = NewTokenizer(nil)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var sentences [][]string
	for scanner.Scan() {
		if r.ReadLines != 0 && len(sentences) == r.ReadLines {
			break
		}
		sentences = append(sentences, tok.Tokenize(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return nil, errs.ErrEmptyCorpus
	}
	return sentences, nil
}
