package model

import (
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SigmaFloor keeps sqrt(sigma) and log(sigma) finite when softplus
// underflows to zero.
const SigmaFloor = 1e-6

// EnsurePositive maps a raw [rows, dim] variance-head output to strictly
// positive variances: softplus(raw) + SigmaFloor.
func EnsurePositive(raw *gorgonia.Node) (*gorgonia.Node, error) {
	sp, err := gorgonia.Softplus(raw)
	if err != nil {
		return nil, err
	}
	// floor has the full shape of raw; no scalar broadcast on sigma
	shape := raw.Shape()
	floor := make([]float64, shape.TotalSize())
	for i := range floor {
		floor[i] = SigmaFloor
	}
	c := gorgonia.NewConstant(tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(floor)))
	return gorgonia.Add(sp, c)
}

// Reparameterize returns mu + eps * sqrt(sigma).
func Reparameterize(mu, sigma, eps *gorgonia.Node) (*gorgonia.Node, error) {
	std, err := gorgonia.Sqrt(sigma)
	if err != nil {
		return nil, err
	}
	noise, err := gorgonia.HadamardProd(eps, std)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(mu, noise)
}

// ELBO computes the three terms of the evidence lower bound. Every term is
// summed over positions and averaged over the batch.
type ELBO struct {
	Batch int
}

// Reconstruction is the categorical log-likelihood of the true ids under
// softmax(scores), row by row. targets is one-hot with all-zero rows at
// padding, so padded positions contribute nothing. It serves as both
// elbo_p1 (L1) and elbo_p2 (L2).
//
// With t the target row and lse = log Σ exp(s) per row:
//
//	Σ t·(s - lse) = Σ t⊙s - Σ_rows (Σ t) · lse
func (e ELBO) Reconstruction(scores, targets *gorgonia.Node) (*gorgonia.Node, error) {
	picked, err := gorgonia.HadamardProd(scores, targets)
	if err != nil {
		return nil, err
	}
	pickedSum, err := gorgonia.Sum(picked)
	if err != nil {
		return nil, err
	}

	exp, err := gorgonia.Exp(scores)
	if err != nil {
		return nil, err
	}
	rowSum, err := gorgonia.Sum(exp, 1)
	if err != nil {
		return nil, err
	}
	lse, err := gorgonia.Log(rowSum)
	if err != nil {
		return nil, err
	}
	mask, err := gorgonia.Sum(targets, 1)
	if err != nil {
		return nil, err
	}
	masked, err := gorgonia.HadamardProd(lse, mask)
	if err != nil {
		return nil, err
	}
	norm, err := gorgonia.Sum(masked)
	if err != nil {
		return nil, err
	}

	ll, err := gorgonia.Sub(pickedSum, norm)
	if err != nil {
		return nil, err
	}
	return e.batchMean(ll)
}

// KL is the closed-form KL(N(mu, sigma) || N(0, I)) =
// 0.5 * Σ (sigma + mu² - 1 - log sigma), over latent dims and positions.
// Each sum is reduced to a scalar before the terms are combined.
func (e ELBO) KL(mu, sigma *gorgonia.Node) (*gorgonia.Node, error) {
	mu2, err := gorgonia.Square(mu)
	if err != nil {
		return nil, err
	}
	sumMu2, err := gorgonia.Sum(mu2)
	if err != nil {
		return nil, err
	}
	sumSigma, err := gorgonia.Sum(sigma)
	if err != nil {
		return nil, err
	}
	logSigma, err := gorgonia.Log(sigma)
	if err != nil {
		return nil, err
	}
	sumLog, err := gorgonia.Sum(logSigma)
	if err != nil {
		return nil, err
	}

	acc, err := gorgonia.Add(sumSigma, sumMu2)
	if err != nil {
		return nil, err
	}
	if acc, err = gorgonia.Sub(acc, sumLog); err != nil {
		return nil, err
	}
	n := float64(sigma.Shape().TotalSize())
	if acc, err = gorgonia.Sub(acc, gorgonia.NewConstant(n)); err != nil {
		return nil, err
	}
	if acc, err = gorgonia.Mul(acc, gorgonia.NewConstant(0.5)); err != nil {
		return nil, err
	}
	return gorgonia.Div(acc, gorgonia.NewConstant(float64(e.Batch)))
}

// Loss returns -(recon1 + recon2 - kl).
func (e ELBO) Loss(recon1, recon2, kl *gorgonia.Node) (*gorgonia.Node, error) {
	recon, err := gorgonia.Add(recon1, recon2)
	if err != nil {
		return nil, err
	}
	return gorgonia.Sub(kl, recon)
}

func (e ELBO) batchMean(total *gorgonia.Node) (*gorgonia.Node, error) {
	return gorgonia.Div(total, gorgonia.NewConstant(float64(e.Batch)))
}
