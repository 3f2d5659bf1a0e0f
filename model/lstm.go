package model

import (
	"math/rand/v2"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gate is one LSTM gate: act(x·W + h·U + b).
type gate struct {
	x *Linear
	h *gorgonia.Node
}

func newGate(g *gorgonia.ExprGraph, rng *rand.Rand, name string, in, hidden int) gate {
	return gate{
		x: NewLinear(g, rng, name, in, hidden),
		h: learnable(g, name+"_u", glorotU(rng, hidden, hidden)),
	}
}

// pre returns the gate pre-activation.
func (gt gate) pre(x, h *gorgonia.Node) (*gorgonia.Node, error) {
	out, err := gt.x.Forward(x)
	if err != nil {
		return nil, err
	}
	hu, err := gorgonia.Mul(h, gt.h)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(out, hu)
}

func (gt gate) learnables() gorgonia.Nodes {
	return append(gt.x.Learnables(), gt.h)
}

// lstmCell runs one direction of the encoder.
type lstmCell struct {
	input, forget, output, cand gate
}

func newLSTMCell(g *gorgonia.ExprGraph, rng *rand.Rand, name string, in, hidden int) *lstmCell {
	return &lstmCell{
		input:  newGate(g, rng, name+"_i", in, hidden),
		forget: newGate(g, rng, name+"_f", in, hidden),
		output: newGate(g, rng, name+"_o", in, hidden),
		cand:   newGate(g, rng, name+"_g", in, hidden),
	}
}

// step advances the cell by one position.
func (l *lstmCell) step(x, h, c *gorgonia.Node) (hNext, cNext *gorgonia.Node, err error) {
	act := func(gt gate, f func(*gorgonia.Node) (*gorgonia.Node, error)) (*gorgonia.Node, error) {
		pre, err := gt.pre(x, h)
		if err != nil {
			return nil, err
		}
		return f(pre)
	}

	i, err := act(l.input, gorgonia.Sigmoid)
	if err != nil {
		return nil, nil, err
	}
	f, err := act(l.forget, gorgonia.Sigmoid)
	if err != nil {
		return nil, nil, err
	}
	o, err := act(l.output, gorgonia.Sigmoid)
	if err != nil {
		return nil, nil, err
	}
	cand, err := act(l.cand, gorgonia.Tanh)
	if err != nil {
		return nil, nil, err
	}

	kept, err := gorgonia.HadamardProd(f, c)
	if err != nil {
		return nil, nil, err
	}
	written, err := gorgonia.HadamardProd(i, cand)
	if err != nil {
		return nil, nil, err
	}
	if cNext, err = gorgonia.Add(kept, written); err != nil {
		return nil, nil, err
	}

	ct, err := gorgonia.Tanh(cNext)
	if err != nil {
		return nil, nil, err
	}
	hNext, err = gorgonia.HadamardProd(o, ct)
	return hNext, cNext, err
}

func (l *lstmCell) learnables() gorgonia.Nodes {
	var out gorgonia.Nodes
	for _, gt := range []gate{l.input, l.forget, l.output, l.cand} {
		out = append(out, gt.learnables()...)
	}
	return out
}

// BiLSTM embeds token ids and runs a forward and a backward LSTM over them.
// Inputs are time-major: row t*batch+b holds position t of sentence b.
type BiLSTM struct {
	Embed    *Embedding
	fwd, bwd *lstmCell
	batch    int
	steps    int
	hidden   int
}

// NewBiLSTM creates the encoder for fixed batch size and sentence length.
func NewBiLSTM(g *gorgonia.ExprGraph, rng *rand.Rand, vocab, embedDim, hidden, pad, batch, steps int) *BiLSTM {
	return &BiLSTM{
		Embed:  NewEmbedding(g, rng, "enc_embed", vocab, embedDim, pad),
		fwd:    newLSTMCell(g, rng, "enc_fwd", embedDim, hidden),
		bwd:    newLSTMCell(g, rng, "enc_bwd", embedDim, hidden),
		batch:  batch,
		steps:  steps,
		hidden: hidden,
	}
}

// Forward returns the averaged forward/backward hidden states as a
// [steps*batch, hidden] time-major matrix.
func (m *BiLSTM) Forward(oneHot *gorgonia.Node) (*gorgonia.Node, error) {
	emb, err := m.Embed.Lookup(oneHot)
	if err != nil {
		return nil, err
	}

	xs := make([]*gorgonia.Node, m.steps)
	for t := range xs {
		if xs[t], err = m.position(emb, t); err != nil {
			return nil, err
		}
	}

	fwd := make([]*gorgonia.Node, m.steps)
	h, c := m.zeroState(), m.zeroState()
	for t := 0; t < m.steps; t++ {
		if h, c, err = m.fwd.step(xs[t], h, c); err != nil {
			return nil, err
		}
		fwd[t] = h
	}

	half := gorgonia.NewConstant(0.5)
	combined := make([]*gorgonia.Node, m.steps)
	h, c = m.zeroState(), m.zeroState()
	for t := m.steps - 1; t >= 0; t-- {
		if h, c, err = m.bwd.step(xs[t], h, c); err != nil {
			return nil, err
		}
		var sum *gorgonia.Node
		if sum, err = gorgonia.Add(fwd[t], h); err != nil {
			return nil, err
		}
		if combined[t], err = gorgonia.Mul(sum, half); err != nil {
			return nil, err
		}
	}

	if m.steps == 1 {
		return combined[0], nil
	}
	return gorgonia.Concat(0, combined...)
}

func (m *BiLSTM) zeroState() *gorgonia.Node {
	return gorgonia.NewConstant(zeros(m.batch, m.hidden))
}

// position slices the rows of step t out of the time-major embeddings.
func (m *BiLSTM) position(emb *gorgonia.Node, t int) (*gorgonia.Node, error) {
	x, err := gorgonia.Slice(emb, gorgonia.S(t*m.batch, (t+1)*m.batch))
	if err != nil {
		return nil, err
	}
	if m.batch == 1 {
		// a one-row slice collapses to a vector
		return gorgonia.Reshape(x, tensor.Shape{1, m.Embed.dim})
	}
	return x, nil
}

// Learnables returns all trainable parameters
func (m *BiLSTM) Learnables() gorgonia.Nodes {
	out := m.Embed.Learnables()
	out = append(out, m.fwd.learnables()...)
	return append(out, m.bwd.learnables()...)
}
