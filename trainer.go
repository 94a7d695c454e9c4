package mlp

import (
	"fmt"
	"math"
	"sync"

	"github.com/robskie/fibvec"
	"github.com/sourcegraph/conc/pool"
	. "github.com/stevegt/goadapt"
)

// TrainingContext drives stochastic gradient descent of a network
// over a data set.  It owns the per-layer scratch state used by the
// backward pass.
type TrainingContext struct {
	Net  *Network
	Data *DataSet

	rng       Rand
	layerData []*LayerData
	epoch     int
	trace     *fibvec.Vector
	traceLen  int
}

// TrainingParms controls a training run.
type TrainingParms struct {
	// Epochs is the number of batches to run.
	Epochs int
	// LearningRate scales each batch's gradient.
	LearningRate float64
	// BatchSize is the number of points sampled, with replacement,
	// per epoch.  Zero means 1.
	BatchSize int
	// Workers > 1 accumulates each batch's gradients in parallel.
	Workers int
	// CheckpointEvery > 0 computes the mean cost every that many
	// epochs and passes it to OnCheckpoint.
	CheckpointEvery int
	OnCheckpoint    func(Checkpoint) error
	// MaxCost > 0 stops training as soon as the mean cost drops
	// below it, and makes running out of epochs an error.
	MaxCost float64
	Verbose bool
}

// Checkpoint is the state reported to TrainingParms.OnCheckpoint.
type Checkpoint struct {
	Epoch int
	Cost  float64
	Net   *Network
}

// NewTrainingContext creates a training context for net and ds.  A nil
// rng samples from the math/rand global source.
func NewTrainingContext(net *Network, ds *DataSet, rng Rand) (tc *TrainingContext) {
	Assert(ds.InputCount() == net.InputCount(), "data set has %d inputs, network %q has %d", ds.InputCount(), net.Name, net.InputCount())
	Assert(ds.TargetCount() == net.OutputCount(), "data set has %d targets, network %q has %d outputs", ds.TargetCount(), net.Name, net.OutputCount())
	tc = &TrainingContext{
		Net:       net,
		Data:      ds,
		rng:       orGlobal(rng),
		layerData: net.NewLayerData(),
		trace:     fibvec.NewVector(),
	}
	return
}

// Epoch returns the number of epochs run so far.
func (tc *TrainingContext) Epoch() int {
	return tc.epoch
}

// LayerData returns the scratch state of layer i, as left by the most
// recent sequential backward pass.
func (tc *TrainingContext) LayerData(i int) *LayerData {
	return tc.layerData[i]
}

// Train runs epochs single-point SGD steps at learningRate.
func (tc *TrainingContext) Train(epochs int, learningRate float64) (err error) {
	_, err = tc.TrainWithParms(TrainingParms{Epochs: epochs, LearningRate: learningRate})
	return
}

// TrainWithParms trains the network and returns its final mean cost
// over the data set.  Each epoch samples a batch, accumulates its
// gradients, applies them scaled by LearningRate/BatchSize, and clears
// the accumulators.  A forward pass error is returned as-is; a
// non-finite cost, gradient, or weight returns ErrUnstable.
func (tc *TrainingContext) TrainWithParms(parms TrainingParms) (cost float64, err error) {
	Assert(parms.Epochs >= 0, "negative epoch count %d", parms.Epochs)
	batchSize := parms.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	rate := parms.LearningRate / float64(batchSize)
	net := tc.Net

	for i := 0; i < parms.Epochs; i++ {
		if parms.Workers > 1 {
			err = tc.parallelBatch(batchSize, parms.Workers)
		} else {
			err = tc.batch(batchSize)
		}
		if err != nil {
			return
		}
		net.ApplyAllGradients(rate)
		if !net.finite() {
			return math.NaN(), ErrUnstable
		}
		net.ClearAllGradients()
		tc.epoch++

		checkpoint := parms.CheckpointEvery > 0 && tc.epoch%parms.CheckpointEvery == 0
		if !checkpoint && parms.MaxCost <= 0 {
			continue
		}
		cost, err = tc.MeanCost()
		if err != nil {
			return
		}
		if checkpoint {
			if parms.Verbose {
				Pf("%s epoch %d cost %g\n", net.Name, tc.epoch, cost)
			}
			if parms.OnCheckpoint != nil {
				err = parms.OnCheckpoint(Checkpoint{Epoch: tc.epoch, Cost: cost, Net: net})
				if err != nil {
					return
				}
			}
		}
		if parms.MaxCost > 0 && cost < parms.MaxCost {
			return
		}
	}

	cost, err = tc.MeanCost()
	if err != nil {
		return
	}
	if parms.MaxCost > 0 {
		err = fmt.Errorf("max epochs reached")
	}
	return
}

// batch accumulates the gradients of batchSize sampled points into
// the layers, one point at a time.
func (tc *TrainingContext) batch(batchSize int) (err error) {
	for i := 0; i < batchSize; i++ {
		p := tc.sample()
		err = tc.Net.UpdateAllGradients(p.Inputs, p.Targets, tc.layerData)
		if err != nil {
			return
		}
	}
	return
}

// parallelBatch is batch with the points spread over a worker pool.
// Each point gets private scratch state and gradients, merged into the
// layers under a lock.  Points are sampled up front so the trace and
// rng sequence match a sequential run.
func (tc *TrainingContext) parallelBatch(batchSize, workers int) error {
	points := make([]*DataPoint, batchSize)
	for i := range points {
		points[i] = tc.sample()
	}

	var mu sync.Mutex
	p := pool.New().WithErrors().WithMaxGoroutines(workers)
	for _, pt := range points {
		pt := pt
		p.Go(func() error {
			data := tc.Net.NewLayerData()
			grads := tc.Net.NewGradients()
			err := tc.Net.AccumulateAllGradients(pt.Inputs, pt.Targets, data, grads)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, layer := range tc.Net.Layers {
				layer.MergeGradients(grads[i])
			}
			return nil
		})
	}
	return p.Wait()
}

func (tc *TrainingContext) sample() *DataPoint {
	p, idx := tc.Data.SelectRandom(tc.rng)
	// fibonacci coding has no zero
	tc.trace.Add(idx + 1)
	tc.traceLen++
	return p
}

// Trace returns the index of every point sampled so far, in order.
func (tc *TrainingContext) Trace() (indices []int) {
	indices = make([]int, tc.traceLen)
	for i := range indices {
		indices[i] = tc.trace.Get(i) - 1
	}
	return
}

// TraceSize returns the encoded size of the sample trace in bytes.
func (tc *TrainingContext) TraceSize() int {
	return tc.trace.Size()
}

// MeanCost returns the cost of the network averaged over the data set.
func (tc *TrainingContext) MeanCost() (cost float64, err error) {
	for _, p := range tc.Data.Points {
		var c float64
		c, err = tc.Net.CalculateCost(p.Inputs, p.Targets)
		if err != nil {
			return
		}
		cost += c
	}
	cost /= float64(tc.Data.Len())
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return cost, ErrUnstable
	}
	return
}

// MkDataSet creates a new data set by running the inputs of ds through
// the network.  The targets in ds are ignored.
func (n *Network) MkDataSet(ds *DataSet) (newSet *DataSet, err error) {
	newSet = &DataSet{}
	for _, p := range ds.Points {
		var outputs []float64
		outputs, err = n.CalculateOutputs(p.Inputs)
		if err != nil {
			return nil, err
		}
		newSet.Add(p.Inputs, outputs)
	}
	return
}

// Mimic trains the network to match the outputs of oldNet given the
// inputs of ds.  The targets in ds are ignored; oldNet's predictions
// are used instead.
func (n *Network) Mimic(oldNet *Network, ds *DataSet, rng Rand, parms TrainingParms) (cost float64, err error) {
	newSet, err := oldNet.MkDataSet(ds)
	if err != nil {
		return
	}
	tc := NewTrainingContext(n, newSet, rng)
	return tc.TrainWithParms(parms)
}
