package corpus

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"embedalign/internal/errs"
)

//go:embed stopwords/*.yaml
var builtin embed.FS

// Stoplist is the YAML document holding stopwords.
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseStoplist(data)
}

// BuiltinStoplist returns the bundled stopwords for a language
// ("english" or "french").
func BuiltinStoplist(lang string) (*Stoplist, error) {
	data, err := builtin.ReadFile("stopwords/" + strings.ToLower(lang) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: no stoplist for language %q", errs.ErrInvalidConfig, lang)
	}
	return parseStoplist(data)
}

func parseStoplist(data []byte) (*Stoplist, error) {
	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}
	return &sl, nil
}

// NewLanguageTokenizer builds a tokenizer with the bundled stopwords of lang.
// An empty lang gives a tokenizer without stopwords.
func NewLanguageTokenizer(lang string) (*Tokenizer, error) {
	if lang == "" {
		return NewTokenizer(nil), nil
	}
	sl, err := BuiltinStoplist(lang)
	if err != nil {
		return nil, err
	}
	return NewTokenizer(sl.Terms), nil
}
