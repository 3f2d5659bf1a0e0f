package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gorgonia.org/gorgonia"

	"embedalign/internal/errs"
)

// Tensor is a detached copy of one parameter.
type Tensor struct {
	Shape []int
	Data  []float64
}

// Params holds detached copies of a component's parameters keyed by name.
type Params map[string]Tensor

// Component is a named group of learnables saved as one checkpoint file.
type Component struct {
	Name  string
	Nodes gorgonia.Nodes
}

// Snapshot copies the current values of the component's parameters.
func (c Component) Snapshot() Params {
	p := make(Params, len(c.Nodes))
	for _, n := range c.Nodes {
		src := n.Value().Data().([]float64)
		data := make([]float64, len(src))
		copy(data, src)
		p[n.Name()] = Tensor{Shape: append([]int(nil), n.Shape()...), Data: data}
	}
	return p
}

// Restore writes p back into the component's parameters in place.
func (c Component) Restore(p Params) error {
	for _, n := range c.Nodes {
		t, ok := p[n.Name()]
		if !ok {
			return fmt.Errorf("%s: %w", n.Name(), errs.ErrNotFound)
		}
		dst := n.Value().Data().([]float64)
		if len(dst) != len(t.Data) {
			return fmt.Errorf("%s: have %d values, checkpoint has %d: %w", n.Name(), len(dst), len(t.Data), errs.ErrShapeMismatch)
		}
		copy(dst, t.Data)
	}
	return nil
}

// Path returns the checkpoint file of the component inside dir.
func (c Component) Path(dir string) string {
	return filepath.Join(dir, c.Name+".gob")
}

// SaveParams gob-encodes p to path, replacing any previous file.
func SaveParams(path string, p Params) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(p)
}

// LoadParams decodes a file written by SaveParams.
func LoadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var p Params
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}
