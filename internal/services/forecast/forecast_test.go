package forecast

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OilCast/internal/domain/models"
)

func TestStandardScaler(t *testing.T) {
	s, err := FitStandardScaler([][]float64{{1, 10}, {3, 10}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 10}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale, "constant column keeps unit scale")

	out, err := s.Transform([][]float64{{1, 10}, {5, 12}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, 0}, {3, 2}}, out)

	_, err = s.Transform([][]float64{{1}})
	var shape *models.ShapeError
	assert.True(t, errors.As(err, &shape))
}

func TestStandardScalerUsesPopulationStd(t *testing.T) {
	X := make([][]float64, 0, 8)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		X = append(X, []float64{v})
	}
	s, err := FitStandardScaler(X)
	require.NoError(t, err)
	assert.InDelta(t, 5, s.Mean[0], 1e-12)
	assert.InDelta(t, 2, s.Scale[0], 1e-12)

	_, err = FitStandardScaler([][]float64{{1, 2}, {3}})
	var shape *models.ShapeError
	assert.True(t, errors.As(err, &shape))
}

func linearData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := float64(i)
		x2 := float64((i * i) % 7)
		X[i] = []float64{x1, x2}
		y[i] = 2*x1 - 3*x2 + 5
	}
	return X, y
}

func TestFitLinear(t *testing.T) {
	X, y := linearData(20)

	t.Run("exact", func(t *testing.T) {
		m, err := FitLinear(X, y, 0)
		require.NoError(t, err)
		assert.InDelta(t, 2, m.Coef[0], 1e-9)
		assert.InDelta(t, -3, m.Coef[1], 1e-9)
		assert.InDelta(t, 5, m.Intercept, 1e-9)
	})

	t.Run("tiny ridge", func(t *testing.T) {
		m, err := FitLinear(X, y, 1e-8)
		require.NoError(t, err)
		pred, err := m.Predict([][]float64{{30, 2}})
		require.NoError(t, err)
		assert.InDelta(t, 59, pred[0], 1e-3)
	})

	t.Run("collinear without ridge", func(t *testing.T) {
		Xc := [][]float64{{1, 2}, {2, 4}, {3, 6}}
		_, err := FitLinear(Xc, []float64{1, 2, 3}, 0)
		assert.Error(t, err)
	})

	t.Run("width mismatch", func(t *testing.T) {
		m := &Linear{Coef: []float64{1, 2}}
		_, err := m.Predict([][]float64{{1, 2, 3}})
		var shape *models.ShapeError
		require.True(t, errors.As(err, &shape))
		assert.Equal(t, 2, shape.Want)
		assert.Equal(t, 3, shape.Got)
	})
}

func stepData() ([][]float64, []float64) {
	X := make([][]float64, 10)
	y := make([]float64, 10)
	for i := range X {
		X[i] = []float64{float64(i)}
		if i >= 5 {
			y[i] = 10
		}
	}
	return X, y
}

func TestFitForest(t *testing.T) {
	X, y := stepData()
	p := ForestParams{NEstimators: 50, Seed: 42}

	f, err := FitForest(X, y, p)
	require.NoError(t, err)
	require.Len(t, f.Trees, 50)

	pred, err := f.Predict([][]float64{{1}, {8}})
	require.NoError(t, err)
	assert.InDelta(t, 0, pred[0], 1.0)
	assert.InDelta(t, 10, pred[1], 1.0)

	again, err := FitForest(X, y, p)
	require.NoError(t, err)
	assert.Equal(t, f, again, "same seed grows the same forest")

	_, err = f.Predict([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestFitForestMaxDepth(t *testing.T) {
	X, y := stepData()
	f, err := FitForest(X, y, ForestParams{NEstimators: 5, MaxDepth: 1, Seed: 1})
	require.NoError(t, err)
	for _, tree := range f.Trees {
		assert.LessOrEqual(t, len(tree.Nodes), 3)
	}
}

func smoothData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a, b := rng.Float64()*2-1, rng.Float64()*2-1
		X[i] = []float64{a, b}
		y[i] = 0.5*a - 0.3*b
	}
	return X, y
}

func variance(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m += x
	}
	m /= float64(len(v))
	s := 0.0
	for _, x := range v {
		s += (x - m) * (x - m)
	}
	return s / float64(len(v))
}

func TestFitMLP(t *testing.T) {
	X, y := smoothData(200, 7)
	p := MLPParams{
		Hidden:       []int{16},
		LearningRate: 0.01,
		BatchSize:    32,
		MaxEpochs:    300,
		Seed:         42,
	}

	net, err := FitMLP(X, y, p)
	require.NoError(t, err)
	assert.Less(t, net.mse(X, y), variance(y)/4)

	again, err := FitMLP(X, y, p)
	require.NoError(t, err)
	assert.Equal(t, net, again, "training is deterministic for a seed")

	_, err = net.Predict([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestFitMLPEarlyStopping(t *testing.T) {
	X, y := smoothData(100, 3)
	p := DefaultMLPParams()
	p.Hidden = []int{8, 4}
	p.MaxEpochs = 50

	net, err := FitMLP(X, y, p)
	require.NoError(t, err)
	require.Len(t, net.Layers, 3)
	assert.Len(t, net.Layers[0].W, 8)
	assert.Len(t, net.Layers[0].W[0], 2)
	assert.Len(t, net.Layers[2].W, 1)

	pred, err := net.Predict(X[:5])
	require.NoError(t, err)
	for _, v := range pred {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPredictorCodec(t *testing.T) {
	X, y := linearData(20)
	lin, err := FitLinear(X, y, 0)
	require.NoError(t, err)
	forest, err := FitForest(X, y, ForestParams{NEstimators: 3, Seed: 1})
	require.NoError(t, err)
	net, err := FitMLP(X, y, MLPParams{Hidden: []int{4}, MaxEpochs: 2, Seed: 1})
	require.NoError(t, err)

	for name, p := range map[string]interface {
		Predict([][]float64) ([]float64, error)
	}{"linear": lin, "forest": forest, "mlp": net} {
		t.Run(name, func(t *testing.T) {
			data, err := EncodePredictor(p)
			require.NoError(t, err)
			back, err := DecodePredictor(data)
			require.NoError(t, err)

			want, err := p.Predict(X)
			require.NoError(t, err)
			got, err := back.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err = DecodePredictor([]byte(`{"kind":"svm","params":{}}`))
	assert.ErrorContains(t, err, "unknown kind")
}

func TestBundle(t *testing.T) {
	spec, err := models.LookupModel(models.ModelMLRJustBrent)
	require.NoError(t, err)

	lin := &Linear{Coef: []float64{1}, Intercept: 0}
	_, err = NewBundle(spec, nil, lin, nil)
	assert.Error(t, err, "scaled model without scaler")

	sc := &StandardScaler{Mean: []float64{10}, Scale: []float64{2}}
	b, err := NewBundle(spec, &models.ModelMeta{FeatureCols: []string{"close_x"}}, lin, sc)
	require.NoError(t, err)
	assert.True(t, b.Scaled())
	assert.Equal(t, []string{"close_x"}, b.FeatureCols())

	out, err := b.Predict([][]float64{{14}, {10}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, out)

	out, err = b.Predict(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	rf, err := models.LookupModel(models.ModelRandomForest)
	require.NoError(t, err)
	raw, err := NewBundle(rf, nil, lin, nil)
	require.NoError(t, err)
	out, err = raw.Predict([][]float64{{14}})
	require.NoError(t, err)
	assert.Equal(t, []float64{14}, out)
}
