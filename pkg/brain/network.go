// Package brain contains a small dense network used as action value
// approximator: one ReLU hidden layer, linear output, MSE loss and Adam.
package brain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/mpapenbr/selfdriving-car-go/pkg/agent"
)

const (
	fileMagic   = "SDCQ"
	fileVersion = uint32(1)
)

var (
	ErrShapeMismatch = agent.ErrShapeMismatch
	ErrBadModelFile  = errors.New("not a model file")
)

type Config struct {
	Hidden       int
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		Hidden:       256,
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		Seed:         1,
	}
}

// param is a trainable matrix together with its Adam moments.
type param struct {
	w    *mat.Dense
	m, v *mat.Dense
	grad *mat.Dense
}

func newParam(r, c int) *param {
	return &param{
		w:    mat.NewDense(r, c, nil),
		m:    mat.NewDense(r, c, nil),
		v:    mat.NewDense(r, c, nil),
		grad: mat.NewDense(r, c, nil),
	}
}

// Network is not safe for concurrent use.
type Network struct {
	cfg     Config
	in, out int
	w1, b1  *param // in x hidden, 1 x hidden
	w2, b2  *param // hidden x out, 1 x out
	step    int
}

var _ agent.QNetwork = (*Network)(nil)

type Option func(*Network)

func WithConfig(cfg Config) Option {
	return func(n *Network) {
		n.cfg = cfg
	}
}

// New creates a network with Glorot uniform weights and zero biases.
func New(in, out int, opts ...Option) *Network {
	n := &Network{cfg: DefaultConfig(), in: in, out: out}
	for _, opt := range opts {
		opt(n)
	}
	h := n.cfg.Hidden
	n.w1, n.b1 = newParam(in, h), newParam(1, h)
	n.w2, n.b2 = newParam(h, out), newParam(1, out)

	rng := rand.New(rand.NewPCG(n.cfg.Seed, n.cfg.Seed+1))
	glorot(n.w1.w, rng)
	glorot(n.w2.w, rng)
	return n
}

func glorot(d *mat.Dense, rng *rand.Rand) {
	r, c := d.Dims()
	limit := math.Sqrt(6 / float64(r+c))
	raw := d.RawMatrix().Data
	for i := range raw {
		raw[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (n *Network) Dims() (in, hidden, out int) {
	return n.in, n.cfg.Hidden, n.out
}

// Predict returns the action values for each state.
func (n *Network) Predict(states [][]float64) ([][]float64, error) {
	if len(states) == 0 {
		return [][]float64{}, nil
	}
	x, err := n.input(states)
	if err != nil {
		return nil, err
	}
	_, y := n.forward(x)
	return rows(y), nil
}

// Fit performs a single Adam step on the mean squared error between the
// prediction for states and targets. It returns the loss before the update.
func (n *Network) Fit(states, targets [][]float64) (float64, error) {
	if len(states) == 0 || len(states) != len(targets) {
		return 0, fmt.Errorf("%w: %d states, %d targets", ErrShapeMismatch, len(states), len(targets))
	}
	x, err := n.input(states)
	if err != nil {
		return 0, err
	}
	t, err := dense(targets, n.out)
	if err != nil {
		return 0, err
	}
	batch := len(states)
	h, y := n.forward(x)

	// dY = 2(Y-T)/(batch*out)
	var dy mat.Dense
	dy.Sub(y, t)
	var loss float64
	for _, v := range dy.RawMatrix().Data {
		loss += v * v
	}
	loss /= float64(batch * n.out)
	dy.Scale(2/float64(batch*n.out), &dy)

	n.w2.grad.Mul(h.T(), &dy)
	colSums(n.b2.grad, &dy)

	var dh mat.Dense
	dh.Mul(&dy, n.w2.w.T())
	dh.Apply(func(i, j int, v float64) float64 {
		if h.At(i, j) <= 0 {
			return 0
		}
		return v
	}, &dh)
	n.w1.grad.Mul(x.T(), &dh)
	colSums(n.b1.grad, &dh)

	n.step++
	for _, p := range n.params() {
		n.adam(p)
	}
	return loss, nil
}

// CopyFrom copies the weights of src. The optimizer state is not copied.
func (n *Network) CopyFrom(src agent.QNetwork) error {
	other, ok := src.(*Network)
	if !ok {
		return fmt.Errorf("%w: cannot copy from %T", ErrShapeMismatch, src)
	}
	if other.in != n.in || other.out != n.out || other.cfg.Hidden != n.cfg.Hidden {
		return fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrShapeMismatch,
			n.in, n.cfg.Hidden, n.out, other.in, other.cfg.Hidden, other.out)
	}
	dst, from := n.params(), other.params()
	for i := range dst {
		dst[i].w.Copy(from[i].w)
	}
	return nil
}

// Save writes the weights to w.
func (n *Network) Save(w io.Writer) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, fileVersion); err != nil {
		return err
	}
	for _, p := range n.params() {
		if _, err := p.w.MarshalBinaryTo(w); err != nil {
			return err
		}
	}
	return nil
}

// Load reads weights written by Save. The dimensions must match.
// The optimizer state is reset.
func (n *Network) Load(r io.Reader) error {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return ErrBadModelFile
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != fileVersion {
		return fmt.Errorf("%w: version %d", ErrBadModelFile, version)
	}
	params := n.params()
	loaded := make([]*mat.Dense, len(params))
	for i, p := range params {
		var d mat.Dense
		if _, err := d.UnmarshalBinaryFrom(r); err != nil {
			return fmt.Errorf("%w: %w", ErrBadModelFile, err)
		}
		wr, wc := p.w.Dims()
		if dr, dc := d.Dims(); dr != wr || dc != wc {
			return fmt.Errorf("%w: parameter %d is %dx%d, want %dx%d", ErrShapeMismatch, i, dr, dc, wr, wc)
		}
		loaded[i] = &d
	}
	for i, p := range params {
		p.w.Copy(loaded[i])
		p.m.Zero()
		p.v.Zero()
	}
	n.step = 0
	return nil
}

func (n *Network) params() []*param {
	return []*param{n.w1, n.b1, n.w2, n.b2}
}

// forward returns the hidden activations and the output.
func (n *Network) forward(x *mat.Dense) (h, y *mat.Dense) {
	batch, _ := x.Dims()
	h = mat.NewDense(batch, n.cfg.Hidden, nil)
	h.Mul(x, n.w1.w)
	addRow(h, n.b1.w)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, h)

	y = mat.NewDense(batch, n.out, nil)
	y.Mul(h, n.w2.w)
	addRow(y, n.b2.w)
	return h, y
}

func (n *Network) adam(p *param) {
	b1, b2 := n.cfg.Beta1, n.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(n.step))
	c2 := 1 - math.Pow(b2, float64(n.step))
	w, m, v, g := p.w.RawMatrix().Data, p.m.RawMatrix().Data, p.v.RawMatrix().Data, p.grad.RawMatrix().Data
	for i := range w {
		m[i] = b1*m[i] + (1-b1)*g[i]
		v[i] = b2*v[i] + (1-b2)*g[i]*g[i]
		mHat := m[i] / c1
		vHat := v[i] / c2
		w[i] -= n.cfg.LearningRate * mHat / (math.Sqrt(vHat) + n.cfg.Epsilon)
	}
}

func (n *Network) input(states [][]float64) (*mat.Dense, error) {
	return dense(states, n.in)
}

func dense(data [][]float64, width int) (*mat.Dense, error) {
	flat := make([]float64, 0, len(data)*width)
	for i, row := range data {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), width)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(data), width, flat), nil
}

func rows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	ret := make([][]float64, r)
	for i := range r {
		ret[i] = mat.Row(nil, i, d)
	}
	return ret
}

// addRow adds the single row matrix b to every row of d.
func addRow(d, b *mat.Dense) {
	d.Apply(func(_, j int, v float64) float64 { return v + b.At(0, j) }, d)
}

func colSums(dst, src *mat.Dense) {
	_, c := src.Dims()
	for j := range c {
		dst.Set(0, j, mat.Sum(src.ColView(j)))
	}
}
