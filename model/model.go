package model

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"embedalign/internal/errs"
)

// Config fixes every shape of the graph.
type Config struct {
	BatchSize      int
	SentenceLength int
	VocabL1        int // filtered L1 vocabulary size
	VocabL2        int // filtered L2 vocabulary size
	EmbeddingDim   int
	HiddenDim      int
	DimZ           int
	DecoderHidden  int
	LearnRate      float64
	Pad            int
}

// Batch is one step of input: BatchSize rows of SentenceLength filtered ids
// per language, plus the standard-normal noise for every (position, row,
// latent dim), time-major.
type Batch struct {
	L1    [][]int
	L2    [][]int
	Noise []float64
}

// Terms are the scalar outputs of one forward pass.
type Terms struct {
	Loss   float64
	Recon1 float64
	Recon2 float64
	KL     float64
}

// Component names, one checkpoint file each.
const (
	Encoder   = "encoder"
	MuHead    = "mu_head"
	VarHead   = "var_head"
	DecoderL1 = "decoder_l1"
	DecoderL2 = "decoder_l2"
)

// EmbedAlign owns the graph, its parameters, the tape machine and the solver.
type EmbedAlign struct {
	cfg Config
	g   *gorgonia.ExprGraph

	encoder *BiLSTM
	muHead  *Linear
	varHead *Linear
	dec1    *FFNN
	dec2    *FFNN

	// inputs
	src, tgt2, noise *gorgonia.Node
	// outputs
	mu, sigma, scores1, scores2 *gorgonia.Node
	recon1, recon2, kl, loss    *gorgonia.Node

	srcBuf, tgt2Buf, noiseBuf *tensor.Dense

	vm     gorgonia.VM
	solver gorgonia.Solver
}

// New builds the graph with parameters initialized from rng.
func New(cfg Config, rng *rand.Rand) (*EmbedAlign, error) {
	if cfg.BatchSize < 1 || cfg.SentenceLength < 1 || cfg.VocabL1 < 2 || cfg.VocabL2 < 2 ||
		cfg.EmbeddingDim < 1 || cfg.HiddenDim < 1 || cfg.DimZ < 1 || cfg.DecoderHidden < 1 {
		return nil, fmt.Errorf("model config %+v: %w", cfg, errs.ErrInvalidConfig)
	}

	g := gorgonia.NewGraph()
	m := &EmbedAlign{
		cfg:     cfg,
		g:       g,
		encoder: NewBiLSTM(g, rng, cfg.VocabL1, cfg.EmbeddingDim, cfg.HiddenDim, cfg.Pad, cfg.BatchSize, cfg.SentenceLength),
		muHead:  NewLinear(g, rng, "mu", cfg.HiddenDim, cfg.DimZ),
		varHead: NewLinear(g, rng, "var", cfg.HiddenDim, cfg.DimZ),
		dec1:    NewFFNN(g, rng, "dec1", cfg.DimZ, cfg.DecoderHidden, cfg.VocabL1),
		dec2:    NewFFNN(g, rng, "dec2", cfg.DimZ, cfg.DecoderHidden, cfg.VocabL2),
	}

	rows := cfg.SentenceLength * cfg.BatchSize
	m.srcBuf = zeros(rows, cfg.VocabL1)
	m.tgt2Buf = zeros(rows, cfg.VocabL2)
	m.noiseBuf = zeros(rows, cfg.DimZ)
	m.src = gorgonia.NewMatrix(g, Float, gorgonia.WithShape(rows, cfg.VocabL1), gorgonia.WithName("src"))
	m.tgt2 = gorgonia.NewMatrix(g, Float, gorgonia.WithShape(rows, cfg.VocabL2), gorgonia.WithName("tgt2"))
	m.noise = gorgonia.NewMatrix(g, Float, gorgonia.WithShape(rows, cfg.DimZ), gorgonia.WithName("noise"))

	if err := m.build(); err != nil {
		return nil, err
	}

	if _, err := gorgonia.Grad(m.loss, m.Learnables()...); err != nil {
		return nil, fmt.Errorf("grad: %w", err)
	}
	m.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(m.Learnables()...))
	m.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearnRate))
	return m, nil
}

func (m *EmbedAlign) build() error {
	h, err := m.encoder.Forward(m.src)
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	if m.mu, err = m.muHead.Forward(h); err != nil {
		return fmt.Errorf("mu head: %w", err)
	}
	raw, err := m.varHead.Forward(h)
	if err != nil {
		return fmt.Errorf("var head: %w", err)
	}
	if m.sigma, err = EnsurePositive(raw); err != nil {
		return err
	}

	z, err := Reparameterize(m.mu, m.sigma, m.noise)
	if err != nil {
		return err
	}
	if m.scores1, err = m.dec1.Forward(z); err != nil {
		return fmt.Errorf("decoder l1: %w", err)
	}
	if m.scores2, err = m.dec2.Forward(z); err != nil {
		return fmt.Errorf("decoder l2: %w", err)
	}

	elbo := ELBO{Batch: m.cfg.BatchSize}
	// the L1 one-hot input already has zero rows at padding, so it doubles
	// as the masked L1 target
	if m.recon1, err = elbo.Reconstruction(m.scores1, m.src); err != nil {
		return fmt.Errorf("elbo p1: %w", err)
	}
	if m.recon2, err = elbo.Reconstruction(m.scores2, m.tgt2); err != nil {
		return fmt.Errorf("elbo p2: %w", err)
	}
	if m.kl, err = elbo.KL(m.mu, m.sigma); err != nil {
		return fmt.Errorf("elbo p3: %w", err)
	}
	m.loss, err = elbo.Loss(m.recon1, m.recon2, m.kl)
	return err
}

// Components returns the parameter groups in checkpoint order.
func (m *EmbedAlign) Components() []Component {
	return []Component{
		{Name: Encoder, Nodes: m.encoder.Learnables()},
		{Name: MuHead, Nodes: m.muHead.Learnables()},
		{Name: VarHead, Nodes: m.varHead.Learnables()},
		{Name: DecoderL1, Nodes: m.dec1.Learnables()},
		{Name: DecoderL2, Nodes: m.dec2.Learnables()},
	}
}

// Learnables returns all trainable parameters
func (m *EmbedAlign) Learnables() gorgonia.Nodes {
	var out gorgonia.Nodes
	for _, c := range m.Components() {
		out = append(out, c.Nodes...)
	}
	return out
}

// Step runs forward and backward on b and applies one optimizer update.
func (m *EmbedAlign) Step(b Batch) (Terms, error) {
	terms, err := m.run(b)
	if err != nil {
		return Terms{}, err
	}
	if err := m.solver.Step(gorgonia.NodesToValueGrads(m.Learnables())); err != nil {
		return Terms{}, fmt.Errorf("solver step: %w", err)
	}
	return terms, nil
}

// Evaluate runs the graph on b without updating parameters.
func (m *EmbedAlign) Evaluate(b Batch) (Terms, error) {
	return m.run(b)
}

func (m *EmbedAlign) run(b Batch) (Terms, error) {
	// Reset rewinds the tape only; learnable gradients accumulate until zeroed.
	m.vm.Reset()
	m.zeroGrads()

	if err := m.load(b); err != nil {
		return Terms{}, err
	}
	if err := m.vm.RunAll(); err != nil {
		return Terms{}, fmt.Errorf("run graph: %w", err)
	}
	return Terms{
		Loss:   scalar(m.loss),
		Recon1: scalar(m.recon1),
		Recon2: scalar(m.recon2),
		KL:     scalar(m.kl),
	}, nil
}

func (m *EmbedAlign) zeroGrads() {
	for _, n := range m.Learnables() {
		g, err := n.Grad()
		if err != nil {
			continue
		}
		if d, ok := g.(*tensor.Dense); ok {
			d.Zero()
		}
	}
}

// load writes b into the input tensors.
func (m *EmbedAlign) load(b Batch) error {
	B, T := m.cfg.BatchSize, m.cfg.SentenceLength
	if len(b.L1) != B || len(b.L2) != B {
		return fmt.Errorf("batch has %d/%d rows, graph expects %d: %w", len(b.L1), len(b.L2), B, errs.ErrShapeMismatch)
	}
	if len(b.Noise) != T*B*m.cfg.DimZ {
		return fmt.Errorf("noise has %d values, want %d: %w", len(b.Noise), T*B*m.cfg.DimZ, errs.ErrShapeMismatch)
	}

	if err := fillOneHot(m.srcBuf, b.L1, T, m.cfg.VocabL1, m.cfg.Pad); err != nil {
		return err
	}
	if err := fillOneHot(m.tgt2Buf, b.L2, T, m.cfg.VocabL2, m.cfg.Pad); err != nil {
		return err
	}
	copy(m.noiseBuf.Data().([]float64), b.Noise)

	if err := gorgonia.Let(m.src, m.srcBuf); err != nil {
		return err
	}
	if err := gorgonia.Let(m.tgt2, m.tgt2Buf); err != nil {
		return err
	}
	return gorgonia.Let(m.noise, m.noiseBuf)
}

// fillOneHot writes rows (batch x steps ids) into buf time-major. Padding
// ids leave their row all zero.
func fillOneHot(buf *tensor.Dense, rows [][]int, steps, vocab, pad int) error {
	data := buf.Data().([]float64)
	for i := range data {
		data[i] = 0
	}
	batch := len(rows)
	for b, row := range rows {
		if len(row) != steps {
			return fmt.Errorf("row %d has %d ids, want %d: %w", b, len(row), steps, errs.ErrShapeMismatch)
		}
		for t, id := range row {
			if id == pad {
				continue
			}
			if id < 0 || id >= vocab {
				return fmt.Errorf("id %d outside vocabulary of %d: %w", id, vocab, errs.ErrShapeMismatch)
			}
			data[(t*batch+b)*vocab+id] = 1
		}
	}
	return nil
}

// Mean returns the latent means of the last run as [steps][batch][dimZ].
func (m *EmbedAlign) Mean() [][][]float64 {
	B, T, Z := m.cfg.BatchSize, m.cfg.SentenceLength, m.cfg.DimZ
	src := m.mu.Value().Data().([]float64)
	out := make([][][]float64, T)
	for t := range out {
		out[t] = make([][]float64, B)
		for b := range out[t] {
			row := make([]float64, Z)
			copy(row, src[(t*B+b)*Z:])
			out[t][b] = row
		}
	}
	return out
}

// Config returns the shapes the graph was built with.
func (m *EmbedAlign) Config() Config {
	return m.cfg
}

// Close releases the tape machine.
func (m *EmbedAlign) Close() error {
	return m.vm.Close()
}

func scalar(n *gorgonia.Node) float64 {
	return n.Value().Data().(float64)
}
