package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"OilCast/internal/domain/models"
	domsvc "OilCast/internal/domain/service"
)

// Layer is a dense layer; W is indexed [out][in].
type Layer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

// MLP is a feed-forward regressor with ReLU hidden layers and a linear output.
type MLP struct {
	Layers []Layer `json:"layers"`
}

func (m *MLP) inputs() int {
	if len(m.Layers) == 0 || len(m.Layers[0].W) == 0 {
		return 0
	}
	return len(m.Layers[0].W[0])
}

func (m *MLP) Predict(X [][]float64) ([]float64, error) {
	want := m.inputs()
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != want {
			return nil, &models.ShapeError{What: "columns", Want: want, Got: len(row)}
		}
		acts := m.forward(row)
		out[i] = acts[len(acts)-1][0]
	}
	return out, nil
}

// forward returns the activations of every layer, input included.
func (m *MLP) forward(x []float64) [][]float64 {
	acts := make([][]float64, 0, len(m.Layers)+1)
	acts = append(acts, x)
	cur := x
	last := len(m.Layers) - 1
	for li, layer := range m.Layers {
		next := make([]float64, len(layer.W))
		for o, w := range layer.W {
			s := layer.B[o]
			for k, v := range w {
				s += v * cur[k]
			}
			if li != last && s < 0 {
				s = 0
			}
			next[o] = s
		}
		acts = append(acts, next)
		cur = next
	}
	return acts
}

// MLPParams configures training. Early stopping holds out the last
// ValidationFraction of the rows and stops after NIterNoChange epochs without
// a validation loss improvement larger than Tol.
type MLPParams struct {
	Hidden             []int   `yaml:"hidden" default:"[64,32,16]"`
	Alpha              float64 `yaml:"alpha" default:"0.001"`
	LearningRate       float64 `yaml:"learning_rate" default:"0.001"`
	BatchSize          int     `yaml:"batch_size" default:"200"`
	MaxEpochs          int     `yaml:"max_epochs" default:"200"`
	EarlyStopping      bool    `yaml:"early_stopping" default:"true"`
	ValidationFraction float64 `yaml:"validation_fraction" default:"0.15"`
	NIterNoChange      int     `yaml:"n_iter_no_change" default:"10"`
	Tol                float64 `yaml:"tol" default:"0.0001"`
	Seed               int64   `yaml:"seed" default:"42"`
}

// DefaultMLPParams returns the parameters the nn model is trained with.
func DefaultMLPParams() MLPParams {
	return MLPParams{
		Hidden:             []int{64, 32, 16},
		Alpha:              1e-3,
		LearningRate:       1e-3,
		BatchSize:          200,
		MaxEpochs:          200,
		EarlyStopping:      true,
		ValidationFraction: 0.15,
		NIterNoChange:      10,
		Tol:                1e-4,
		Seed:               42,
	}
}

// MLPLearner trains an MLP with Adam.
type MLPLearner struct {
	Params MLPParams
}

func (l MLPLearner) Fit(X [][]float64, y []float64) (domsvc.Predictor, error) {
	return FitMLP(X, y, l.Params)
}

type adamState struct {
	m, v [][]float64 // per layer, flattened W followed by B
}

// FitMLP trains a network on X/y and returns the weights with the best
// validation loss when early stopping is on, the final weights otherwise.
func FitMLP(X [][]float64, y []float64, p MLPParams) (*MLP, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("fit mlp: no rows")
	}
	if len(y) != n {
		return nil, &models.ShapeError{What: "y", Want: n, Got: len(y)}
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return nil, &models.ShapeError{What: "columns", Want: width, Got: len(row)}
		}
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 1e-3
	}
	if p.MaxEpochs <= 0 {
		p.MaxEpochs = 200
	}
	if p.NIterNoChange <= 0 {
		p.NIterNoChange = 10
	}

	trainN := n
	if p.EarlyStopping && p.ValidationFraction > 0 && p.ValidationFraction < 1 {
		hold := int(math.Ceil(float64(n) * p.ValidationFraction))
		if hold >= 1 && n-hold >= 1 {
			trainN = n - hold
		}
	}
	trX, trY := X[:trainN], y[:trainN]
	vaX, vaY := X[trainN:], y[trainN:]
	validate := len(vaX) > 0

	rng := rand.New(rand.NewSource(p.Seed))
	net := initMLP(width, p.Hidden, rng)
	st := newAdam(net)

	batch := p.BatchSize
	if batch <= 0 || batch > trainN {
		batch = trainN
	}

	best := cloneMLP(net)
	bestLoss := math.Inf(1)
	stale := 0
	step := 0
	order := make([]int, trainN)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < p.MaxEpochs; epoch++ {
		rng.Shuffle(trainN, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < trainN; start += batch {
			end := start + batch
			if end > trainN {
				end = trainN
			}
			grads := net.gradients(trX, trY, order[start:end], p.Alpha, trainN)
			step++
			st.apply(net, grads, p.LearningRate, step)
		}

		var loss float64
		if validate {
			loss = net.mse(vaX, vaY)
		} else {
			loss = net.mse(trX, trY)
		}
		if math.IsNaN(loss) {
			return nil, fmt.Errorf("fit mlp: loss diverged at epoch %d", epoch)
		}
		if loss < bestLoss-p.Tol {
			bestLoss = loss
			best = cloneMLP(net)
			stale = 0
		} else {
			stale++
		}
		if stale >= p.NIterNoChange {
			break
		}
	}
	if validate {
		return best, nil
	}
	return net, nil
}

func initMLP(in int, hidden []int, rng *rand.Rand) *MLP {
	sizes := append(append([]int{in}, hidden...), 1)
	net := &MLP{Layers: make([]Layer, len(sizes)-1)}
	for l := range net.Layers {
		fanIn, fanOut := sizes[l], sizes[l+1]
		bound := math.Sqrt(6 / float64(fanIn+fanOut))
		W := make([][]float64, fanOut)
		for o := range W {
			W[o] = make([]float64, fanIn)
			for k := range W[o] {
				W[o][k] = (rng.Float64()*2 - 1) * bound
			}
		}
		B := make([]float64, fanOut)
		for o := range B {
			B[o] = (rng.Float64()*2 - 1) * bound
		}
		net.Layers[l] = Layer{W: W, B: B}
	}
	return net
}

func cloneMLP(m *MLP) *MLP {
	c := &MLP{Layers: make([]Layer, len(m.Layers))}
	for l, layer := range m.Layers {
		W := make([][]float64, len(layer.W))
		for o := range layer.W {
			W[o] = append([]float64(nil), layer.W[o]...)
		}
		c.Layers[l] = Layer{W: W, B: append([]float64(nil), layer.B...)}
	}
	return c
}

func (m *MLP) mse(X [][]float64, y []float64) float64 {
	s := 0.0
	for i, row := range X {
		acts := m.forward(row)
		d := acts[len(acts)-1][0] - y[i]
		s += d * d
	}
	return s / float64(len(X))
}

// gradients returns dLoss/dparam for the half squared error over the batch
// plus the L2 penalty alpha/(2n)·||W||², flattened per layer like adamState.
func (m *MLP) gradients(X [][]float64, y []float64, batch []int, alpha float64, n int) [][]float64 {
	grads := make([][]float64, len(m.Layers))
	for l, layer := range m.Layers {
		grads[l] = make([]float64, len(layer.W)*len(layer.W[0])+len(layer.B))
	}
	bs := float64(len(batch))
	for _, idx := range batch {
		acts := m.forward(X[idx])
		delta := []float64{acts[len(acts)-1][0] - y[idx]}
		for l := len(m.Layers) - 1; l >= 0; l-- {
			layer := m.Layers[l]
			in := acts[l]
			g := grads[l]
			fanIn := len(in)
			for o := range layer.W {
				for k := 0; k < fanIn; k++ {
					g[o*fanIn+k] += delta[o] * in[k] / bs
				}
				g[len(layer.W)*fanIn+o] += delta[o] / bs
			}
			if l == 0 {
				break
			}
			prev := make([]float64, fanIn)
			for k := 0; k < fanIn; k++ {
				if in[k] <= 0 {
					continue
				}
				s := 0.0
				for o := range layer.W {
					s += layer.W[o][k] * delta[o]
				}
				prev[k] = s
			}
			delta = prev
		}
	}
	if alpha > 0 {
		for l, layer := range m.Layers {
			fanIn := len(layer.W[0])
			for o := range layer.W {
				for k := 0; k < fanIn; k++ {
					grads[l][o*fanIn+k] += alpha * layer.W[o][k] / float64(n)
				}
			}
		}
	}
	return grads
}

func newAdam(m *MLP) *adamState {
	st := &adamState{m: make([][]float64, len(m.Layers)), v: make([][]float64, len(m.Layers))}
	for l, layer := range m.Layers {
		size := len(layer.W)*len(layer.W[0]) + len(layer.B)
		st.m[l] = make([]float64, size)
		st.v[l] = make([]float64, size)
	}
	return st
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func (st *adamState) apply(m *MLP, grads [][]float64, lr float64, step int) {
	c1 := 1 - math.Pow(adamBeta1, float64(step))
	c2 := 1 - math.Pow(adamBeta2, float64(step))
	for l, layer := range m.Layers {
		fanIn := len(layer.W[0])
		g := grads[l]
		for i := range g {
			st.m[l][i] = adamBeta1*st.m[l][i] + (1-adamBeta1)*g[i]
			st.v[l][i] = adamBeta2*st.v[l][i] + (1-adamBeta2)*g[i]*g[i]
			upd := lr * (st.m[l][i] / c1) / (math.Sqrt(st.v[l][i]/c2) + adamEps)
			if i < len(layer.W)*fanIn {
				layer.W[i/fanIn][i%fanIn] -= upd
			} else {
				layer.B[i-len(layer.W)*fanIn] -= upd
			}
		}
	}
}
