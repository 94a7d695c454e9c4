package mlp

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	. "github.com/stevegt/goadapt"
	"gonum.org/v1/gonum/floats"
)

func xorData() *DataSet {
	return NewDataSet(
		[][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		[][]float64{{0}, {1}, {1}, {0}},
	)
}

func TestXOR(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork("xor", rng, 2, 3, 1)
	ds := xorData()
	tc := NewTrainingContext(net, ds, rng)

	var costs []float64
	cost, err := tc.TrainWithParms(TrainingParms{
		Epochs:          5000,
		LearningRate:    10,
		BatchSize:       64,
		CheckpointEvery: 100,
		OnCheckpoint: func(cp Checkpoint) error {
			Tassert(t, cp.Net == net, "checkpoint carries the wrong network")
			Tassert(t, cp.Epoch == 100*(len(costs)+1), cp.Epoch)
			costs = append(costs, cp.Cost)
			return nil
		},
	})
	Tassert(t, err == nil, err)
	Tassert(t, tc.Epoch() == 5000, tc.Epoch())
	Tassert(t, len(costs) == 50, len(costs))
	for i := 1; i < len(costs); i++ {
		Tassert(t, costs[i] < costs[i-1], "cost rose at epoch %d: %v -> %v", 100*(i+1), costs[i-1], costs[i])
	}
	Tassert(t, cost < 0.05, cost)
	Tassert(t, cost == costs[len(costs)-1], cost, costs[len(costs)-1])
	// the total of four points is below 0.2, so every point is too
	Tassert(t, net.Validate(ds, 0.2) == nil, "validate failed")
}

func TestParallelMatchesSequential(t *testing.T) {
	net := NewNetwork("seq", rand.New(rand.NewSource(3)), 2, 4, 1)
	net.SetActivation(0, Tanh)
	par := net.Clone("par")
	ds := xorData()

	parms := TrainingParms{Epochs: 20, LearningRate: 2, BatchSize: 16}
	seqTc := NewTrainingContext(net, ds, rand.New(rand.NewSource(9)))
	seqCost, err := seqTc.TrainWithParms(parms)
	Tassert(t, err == nil, err)

	parms.Workers = 4
	parTc := NewTrainingContext(par, ds, rand.New(rand.NewSource(9)))
	parCost, err := parTc.TrainWithParms(parms)
	Tassert(t, err == nil, err)

	Tassert(t, floats.EqualApprox([]float64{seqCost}, []float64{parCost}, 1e-9), seqCost, parCost)
	for l := range net.Layers {
		for i := range net.Layers[l].Weights {
			Tassert(t, floats.EqualApprox(net.Layers[l].Weights[i], par.Layers[l].Weights[i], 1e-9), net.Layers[l].Weights[i], par.Layers[l].Weights[i])
		}
		Tassert(t, floats.EqualApprox(net.Layers[l].Biases, par.Layers[l].Biases, 1e-9), net.Layers[l].Biases, par.Layers[l].Biases)
	}

	seqTrace, parTrace := seqTc.Trace(), parTc.Trace()
	Tassert(t, len(seqTrace) == 320 && len(parTrace) == 320, len(seqTrace), len(parTrace))
	for i := range seqTrace {
		Tassert(t, seqTrace[i] == parTrace[i], "trace differs at %d", i)
	}
}

func TestTrace(t *testing.T) {
	ds := xorData()
	net := NewNetwork("trace", rand.New(rand.NewSource(1)), 2, 2, 1)
	tc := NewTrainingContext(net, ds, rand.New(rand.NewSource(2)))
	Tassert(t, len(tc.Trace()) == 0, tc.Trace())

	err := tc.Train(100, 1)
	Tassert(t, err == nil, err)
	trace := tc.Trace()
	Tassert(t, len(trace) == 100, len(trace))
	seen := map[int]bool{}
	for _, idx := range trace {
		Tassert(t, idx >= 0 && idx < ds.Len(), idx)
		seen[idx] = true
	}
	// 100 draws from 4 points miss one with negligible probability
	Tassert(t, len(seen) == 4, seen)
	Tassert(t, tc.TraceSize() > 0, tc.TraceSize())

	// scratch state reflects the last sampled point
	last := ds.Points[trace[99]]
	Tassert(t, floats.Equal(tc.LayerData(0).Inputs, last.Inputs), tc.LayerData(0).Inputs, last.Inputs)
}

func TestTrainSingleStep(t *testing.T) {
	net := NewNetwork("step", rand.New(rand.NewSource(4)), 2, 3, 2)
	net.SetActivation(0, Tanh)
	ref := net.Clone("ref")
	ds := NewDataSet(
		[][]float64{{0.1, 0.9}, {-0.5, 0.3}, {0.7, -0.2}},
		[][]float64{{1, 0}, {0, 1}, {0.5, 0.5}},
	)
	tc := NewTrainingContext(net, ds, rand.New(rand.NewSource(5)))
	const rate = 0.5
	err := tc.Train(1, rate)
	Tassert(t, err == nil, err)
	Tassert(t, tc.Epoch() == 1, tc.Epoch())
	trace := tc.Trace()
	Tassert(t, len(trace) == 1, trace)

	// gradient of the sampled point alone, taken before the step
	p := ds.Points[trace[0]]
	err = ref.UpdateAllGradients(p.Inputs, p.Targets, ref.NewLayerData())
	Tassert(t, err == nil, err)
	for l, layer := range net.Layers {
		before, g := ref.Layers[l], ref.Layers[l].Gradients()
		for i := range layer.Weights {
			for j := range layer.Weights[i] {
				want := before.Weights[i][j] - rate*g.Weights[i][j]
				Tassert(t, math.Abs(layer.Weights[i][j]-want) < 1e-12, "layer %d weight %d,%d: %v vs %v", l, i, j, layer.Weights[i][j], want)
			}
			want := before.Biases[i] - rate*g.Biases[i]
			Tassert(t, math.Abs(layer.Biases[i]-want) < 1e-12, "layer %d bias %d: %v vs %v", l, i, layer.Biases[i], want)
		}
		// at least one gradient is nonzero, or the step proves nothing
		Tassert(t, floats.Norm(g.Biases, 2) > 0, g.Biases)

		// accumulators are cleared after the step
		acc := layer.Gradients()
		Tassert(t, floats.Norm(acc.Biases, 2) == 0, acc.Biases)
		for i := range acc.Weights {
			Tassert(t, floats.Norm(acc.Weights[i], 2) == 0, acc.Weights[i])
		}
	}
}

func TestUnstable(t *testing.T) {
	net := NewNetwork("boom", nil, 1, 1)
	net.SetActivation(-1, Linear)
	net.Layers[0].SetWeights([][]float64{{1}})
	net.Layers[0].SetBiases([]float64{0})
	ds := NewDataSet([][]float64{{10}}, [][]float64{{0}})
	tc := NewTrainingContext(net, ds, rand.New(rand.NewSource(1)))
	err := tc.Train(1000, 1e3)
	Tassert(t, errors.Is(err, ErrUnstable), err)
	Tassert(t, tc.Epoch() < 1000, tc.Epoch())
}

func TestMaxCost(t *testing.T) {
	ds := xorData()

	// a sigmoid output under mean squared error costs at most 0.5
	net := NewNetwork("easy", rand.New(rand.NewSource(1)), 2, 3, 1)
	tc := NewTrainingContext(net, ds, rand.New(rand.NewSource(1)))
	cost, err := tc.TrainWithParms(TrainingParms{Epochs: 100, LearningRate: 1, MaxCost: 0.6})
	Tassert(t, err == nil, err)
	Tassert(t, tc.Epoch() == 1, tc.Epoch())
	Tassert(t, cost < 0.6, cost)

	net = NewNetwork("hard", rand.New(rand.NewSource(1)), 2, 3, 1)
	tc = NewTrainingContext(net, ds, rand.New(rand.NewSource(1)))
	_, err = tc.TrainWithParms(TrainingParms{Epochs: 5, LearningRate: 1, MaxCost: 1e-12})
	Tassert(t, err != nil && strings.Contains(err.Error(), "max epochs reached"), err)
	Tassert(t, tc.Epoch() == 5, tc.Epoch())
}

func TestCheckpointError(t *testing.T) {
	net := NewNetwork("stop", rand.New(rand.NewSource(1)), 2, 3, 1)
	tc := NewTrainingContext(net, xorData(), rand.New(rand.NewSource(1)))
	stop := errors.New("stop")
	_, err := tc.TrainWithParms(TrainingParms{
		Epochs:          100,
		LearningRate:    1,
		CheckpointEvery: 10,
		OnCheckpoint:    func(Checkpoint) error { return stop },
	})
	Tassert(t, err == stop, err)
	Tassert(t, tc.Epoch() == 10, tc.Epoch())
}

func TestNewTrainingContextMismatch(t *testing.T) {
	net := NewNetwork("foo", nil, 3, 1)
	Tassert(t, panics(func() { NewTrainingContext(net, xorData(), nil) }), "input width mismatch should panic")
	net = NewNetwork("foo", nil, 2, 2)
	Tassert(t, panics(func() { NewTrainingContext(net, xorData(), nil) }), "target width mismatch should panic")
}

func TestMkDataSet(t *testing.T) {
	net := NewNetwork("source", rand.New(rand.NewSource(1)), 2, 3, 2)
	ds, err := net.MkDataSet(xorData())
	Tassert(t, err == nil, err)
	Tassert(t, ds.Len() == 4, ds.Len())
	Tassert(t, ds.TargetCount() == 2, ds.TargetCount())
	for _, p := range ds.Points {
		want, err := net.CalculateOutputs(p.Inputs)
		Tassert(t, err == nil, err)
		Tassert(t, floats.Equal(p.Targets, want), p.Targets, want)
	}

	bad := NewDataSet([][]float64{{1, 2, 3}}, [][]float64{{0}})
	_, err = net.MkDataSet(bad)
	var sizeErr *SizeMismatchError
	Tassert(t, errors.As(err, &sizeErr), err)
}

func TestMimic(t *testing.T) {
	ds := xorData()
	oldNet := NewNetwork("old", rand.New(rand.NewSource(1)), 2, 3, 1)
	newNet := NewNetwork("new", rand.New(rand.NewSource(2)), 2, 3, 1)

	target, err := oldNet.MkDataSet(ds)
	Tassert(t, err == nil, err)
	before, err := NewTrainingContext(newNet, target, nil).MeanCost()
	Tassert(t, err == nil, err)

	cost, err := newNet.Mimic(oldNet, ds, rand.New(rand.NewSource(3)), TrainingParms{
		Epochs:       2000,
		LearningRate: 2,
		BatchSize:    16,
	})
	Tassert(t, err == nil, err)
	Tassert(t, cost < before, cost, before)
	after, err := NewTrainingContext(newNet, target, nil).MeanCost()
	Tassert(t, err == nil, err)
	Tassert(t, after == cost, after, cost)
}

func benchmarkTrain(b *testing.B, workers int) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork("bench", rng, 2, 16, 16, 1)
	tc := NewTrainingContext(net, xorData(), rng)
	parms := TrainingParms{Epochs: 1, LearningRate: 1, BatchSize: 64, Workers: workers}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := tc.TrainWithParms(parms)
		Ck(err)
	}
}

func BenchmarkTrain(b *testing.B) {
	benchmarkTrain(b, 1)
}

func BenchmarkTrainParallel(b *testing.B) {
	benchmarkTrain(b, 4)
}
