// Package model builds the embed-align computation graph on gorgonia:
// a BiLSTM encoder over L1 sentences, Gaussian latent heads and one
// categorical decoder per language.
package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the dtype of every tensor in the graph.
var Float = tensor.Float64

// glorotU draws a rows x cols matrix from U(-l, l), l = sqrt(6/(rows+cols)),
// using rng so that initialization is reproducible.
func glorotU(rng *rand.Rand, rows, cols int) *tensor.Dense {
	limit := math.Sqrt(6.0 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))
}

func zeros(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(make([]float64, rows*cols)))
}

func learnable(g *gorgonia.ExprGraph, name string, value *tensor.Dense) *gorgonia.Node {
	shape := value.Shape()
	return gorgonia.NewMatrix(g, Float,
		gorgonia.WithShape(shape[0], shape[1]),
		gorgonia.WithName(name),
		gorgonia.WithValue(value),
	)
}

// Embedding maps one-hot rows to dense vectors.
type Embedding struct {
	weights *gorgonia.Node
	dim     int
}

// NewEmbedding creates a vocab x dim lookup table. Row pad starts at zero.
func NewEmbedding(g *gorgonia.ExprGraph, rng *rand.Rand, name string, vocab, dim, pad int) *Embedding {
	w := glorotU(rng, vocab, dim)
	data := w.Data().([]float64)
	for j := 0; j < dim; j++ {
		data[pad*dim+j] = 0
	}
	return &Embedding{weights: learnable(g, name, w), dim: dim}
}

// Lookup multiplies one-hot rows [n, vocab] with the table. All-zero rows
// give zero vectors and no gradient, which is how padding is encoded.
func (e *Embedding) Lookup(oneHot *gorgonia.Node) (*gorgonia.Node, error) {
	return gorgonia.Mul(oneHot, e.weights)
}

// Learnables returns all trainable parameters
func (e *Embedding) Learnables() gorgonia.Nodes {
	return gorgonia.Nodes{e.weights}
}

// Linear is an affine map x·W + b.
type Linear struct {
	w, b *gorgonia.Node
	out  int
}

// NewLinear creates an in -> out affine layer with a zero bias.
func NewLinear(g *gorgonia.ExprGraph, rng *rand.Rand, name string, in, out int) *Linear {
	return &Linear{
		w:   learnable(g, name+"_w", glorotU(rng, in, out)),
		b:   learnable(g, name+"_b", zeros(1, out)),
		out: out,
	}
}

// Forward applies the layer to a [rows, in] matrix.
func (l *Linear) Forward(x *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, l.w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.w.Name(), err)
	}
	bias, err := rowBroadcast(x.Shape()[0], l.b)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(xw, bias)
}

// Learnables returns all trainable parameters
func (l *Linear) Learnables() gorgonia.Nodes {
	return gorgonia.Nodes{l.w, l.b}
}

// rowBroadcast repeats a [1, n] row rows times as ones[rows,1]·row.
func rowBroadcast(rows int, row *gorgonia.Node) (*gorgonia.Node, error) {
	ones := gorgonia.NewConstant(tensor.Ones(Float, rows, 1))
	return gorgonia.Mul(ones, row)
}

// FFNN is a one-hidden-layer ReLU network producing unnormalized scores.
type FFNN struct {
	hidden *Linear
	out    *Linear
}

// NewFFNN creates an in -> hidden -> out network.
func NewFFNN(g *gorgonia.ExprGraph, rng *rand.Rand, name string, in, hidden, out int) *FFNN {
	return &FFNN{
		hidden: NewLinear(g, rng, name+"_h", in, hidden),
		out:    NewLinear(g, rng, name+"_o", hidden, out),
	}
}

// Forward returns the scores for x.
func (f *FFNN) Forward(x *gorgonia.Node) (*gorgonia.Node, error) {
	h, err := f.hidden.Forward(x)
	if err != nil {
		return nil, err
	}
	hAct, err := gorgonia.Rectify(h)
	if err != nil {
		return nil, err
	}
	return f.out.Forward(hAct)
}

// Learnables returns all trainable parameters
func (f *FFNN) Learnables() gorgonia.Nodes {
	return append(f.hidden.Learnables(), f.out.Learnables()...)
}
