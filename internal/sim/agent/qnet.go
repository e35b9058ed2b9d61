package agent

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-7
)

type NetConfig struct {
	Inputs       int
	Outputs      int
	Hidden       []int
	LearningRate float64
	// "adam" or "sgd".
	Optimizer string
	Seed      int64
}

type layer struct {
	w *mat.Dense    // out x in
	b *mat.VecDense // out

	// Adam moments, same shapes as w and b.
	mw, vw *mat.Dense
	mb, vb *mat.VecDense
}

// QNet is a fully connected action-value network: ReLU hidden layers, a linear
// output per action, mean squared error loss.
type QNet struct {
	cfg    NetConfig
	layers []*layer
	step   int
}

func NewQNet(cfg NetConfig) (*QNet, error) {
	if cfg.Inputs <= 0 || cfg.Outputs <= 0 {
		return nil, fmt.Errorf("qnet: bad shape %d->%d", cfg.Inputs, cfg.Outputs)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("qnet: learning rate must be > 0")
	}
	cfg.Optimizer = strings.ToLower(cfg.Optimizer)
	switch cfg.Optimizer {
	case "":
		cfg.Optimizer = "adam"
	case "adam", "sgd":
	default:
		return nil, fmt.Errorf("qnet: unknown optimizer %q", cfg.Optimizer)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sizes := append(append([]int{cfg.Inputs}, cfg.Hidden...), cfg.Outputs)
	q := &QNet{cfg: cfg}
	for i := 1; i < len(sizes); i++ {
		in, out := sizes[i-1], sizes[i]
		// Glorot uniform.
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, out*in)
		for j := range data {
			data[j] = (rng.Float64()*2 - 1) * limit
		}
		q.layers = append(q.layers, newLayer(mat.NewDense(out, in, data), mat.NewVecDense(out, nil)))
	}
	return q, nil
}

func newLayer(w *mat.Dense, b *mat.VecDense) *layer {
	r, c := w.Dims()
	return &layer{
		w:  w,
		b:  b,
		mw: mat.NewDense(r, c, nil),
		vw: mat.NewDense(r, c, nil),
		mb: mat.NewVecDense(r, nil),
		vb: mat.NewVecDense(r, nil),
	}
}

func (q *QNet) Config() NetConfig { return q.cfg }

// forward returns pre-activations and activations per layer; acts[0] is the input.
func (q *QNet) forward(x []float64) (zs, acts []*mat.VecDense) {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	acts = append(acts, a)
	for i, l := range q.layers {
		r, _ := l.w.Dims()
		z := mat.NewVecDense(r, nil)
		z.MulVec(l.w, a)
		z.AddVec(z, l.b)
		zs = append(zs, z)

		next := mat.VecDenseCopyOf(z)
		if i < len(q.layers)-1 {
			for j := 0; j < r; j++ {
				if next.AtVec(j) < 0 {
					next.SetVec(j, 0)
				}
			}
		}
		acts = append(acts, next)
		a = next
	}
	return zs, acts
}

// Predict returns one value estimate per action.
func (q *QNet) Predict(x []float64) []float64 {
	if len(x) != q.cfg.Inputs {
		panic(fmt.Sprintf("qnet: input size %d want %d", len(x), q.cfg.Inputs))
	}
	_, acts := q.forward(x)
	out := acts[len(acts)-1]
	return append([]float64(nil), out.RawVector().Data...)
}

// Fit runs one gradient step toward target on the single example x and returns the
// loss measured before the step.
func (q *QNet) Fit(x, target []float64) float64 {
	if len(x) != q.cfg.Inputs || len(target) != q.cfg.Outputs {
		panic(fmt.Sprintf("qnet: fit shape %d/%d want %d/%d", len(x), len(target), q.cfg.Inputs, q.cfg.Outputs))
	}
	zs, acts := q.forward(x)
	y := acts[len(acts)-1]

	n := float64(q.cfg.Outputs)
	delta := mat.NewVecDense(q.cfg.Outputs, nil)
	var loss float64
	for i := 0; i < q.cfg.Outputs; i++ {
		d := y.AtVec(i) - target[i]
		loss += d * d
		delta.SetVec(i, 2*d/n)
	}
	loss /= n

	q.step++
	for li := len(q.layers) - 1; li >= 0; li-- {
		l := q.layers[li]
		r, c := l.w.Dims()
		gw := mat.NewDense(r, c, nil)
		gw.Outer(1, delta, acts[li])
		gb := mat.VecDenseCopyOf(delta)

		if li > 0 {
			prev := mat.NewVecDense(c, nil)
			prev.MulVec(l.w.T(), delta)
			z := zs[li-1]
			for j := 0; j < c; j++ {
				if z.AtVec(j) <= 0 {
					prev.SetVec(j, 0)
				}
			}
			delta = prev
		}

		q.apply(l.w.RawMatrix().Data, gw.RawMatrix().Data, l.mw.RawMatrix().Data, l.vw.RawMatrix().Data)
		q.apply(l.b.RawVector().Data, gb.RawVector().Data, l.mb.RawVector().Data, l.vb.RawVector().Data)
	}
	return loss
}

func (q *QNet) apply(p, g, m, v []float64) {
	lr := q.cfg.LearningRate
	if q.cfg.Optimizer == "sgd" {
		for i := range p {
			p[i] -= lr * g[i]
		}
		return
	}
	c1 := 1 - math.Pow(adamBeta1, float64(q.step))
	c2 := 1 - math.Pow(adamBeta2, float64(q.step))
	for i := range p {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g[i]
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g[i]*g[i]
		mh := m[i] / c1
		vh := v[i] / c2
		p[i] -= lr * mh / (math.Sqrt(vh) + adamEps)
	}
}

// LayerParams is a dense layer in row-major order: W is Rows x Cols, B has Rows entries.
type LayerParams struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	W    []float64 `json:"w"`
	B    []float64 `json:"b"`
}

// Params copies the weights out. Optimizer moments are not included.
func (q *QNet) Params() []LayerParams {
	out := make([]LayerParams, 0, len(q.layers))
	for _, l := range q.layers {
		r, c := l.w.Dims()
		w := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			w = append(w, l.w.RawRowView(i)...)
		}
		out = append(out, LayerParams{
			Rows: r,
			Cols: c,
			W:    w,
			B:    append([]float64(nil), l.b.RawVector().Data...),
		})
	}
	return out
}

// SetParams replaces the weights and resets optimizer state. Shapes must match.
func (q *QNet) SetParams(ps []LayerParams) error {
	if len(ps) != len(q.layers) {
		return fmt.Errorf("qnet: %d layers in params, network has %d", len(ps), len(q.layers))
	}
	for i, p := range ps {
		r, c := q.layers[i].w.Dims()
		if p.Rows != r || p.Cols != c || len(p.W) != r*c || len(p.B) != r {
			return fmt.Errorf("qnet: layer %d shape %dx%d (w=%d b=%d) want %dx%d", i, p.Rows, p.Cols, len(p.W), len(p.B), r, c)
		}
	}
	for i, p := range ps {
		q.layers[i] = newLayer(
			mat.NewDense(p.Rows, p.Cols, append([]float64(nil), p.W...)),
			mat.NewVecDense(p.Rows, append([]float64(nil), p.B...)),
		)
	}
	q.step = 0
	return nil
}

// Shape lists layer widths from input to output.
func (q *QNet) Shape() []int {
	out := []int{q.cfg.Inputs}
	for _, l := range q.layers {
		r, _ := l.w.Dims()
		out = append(out, r)
	}
	return out
}

// NetFromParams builds a network whose shape is taken from ps.
func NetFromParams(ps []LayerParams, cfg NetConfig) (*QNet, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("qnet: no layers")
	}
	cfg.Inputs = ps[0].Cols
	cfg.Outputs = ps[len(ps)-1].Rows
	cfg.Hidden = nil
	for _, p := range ps[:len(ps)-1] {
		cfg.Hidden = append(cfg.Hidden, p.Rows)
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	q, err := NewQNet(cfg)
	if err != nil {
		return nil, err
	}
	if err := q.SetParams(ps); err != nil {
		return nil, err
	}
	return q, nil
}

// Clone copies the weights into an independent network. Optimizer state starts fresh.
func (q *QNet) Clone() *QNet {
	c := &QNet{cfg: q.cfg}
	c.cfg.Hidden = append([]int(nil), q.cfg.Hidden...)
	for _, l := range q.layers {
		c.layers = append(c.layers, newLayer(mat.DenseCopyOf(l.w), mat.VecDenseCopyOf(l.b)))
	}
	return c
}

// Argmax returns the first index holding the largest value.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] || (math.IsNaN(v[best]) && !math.IsNaN(v[i])) {
			best = i
		}
	}
	return best
}

func maxOf(v []float64) float64 { return v[Argmax(v)] }
