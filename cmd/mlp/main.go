// Command mlp builds a network from a shape, trains it on a data set,
// and prints its predictions.
//
// Usage:
//
//	mlp [flags]
//
// Without -csv it trains on XOR.  Database settings for -record come
// from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME,
// DB_TABLE_PREFIX, and NTP_SERVER, read from the environment and the
// -env file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"

	"github.com/stevegt/mlp"
	"github.com/stevegt/mlp/runlog"
)

type options struct {
	shape    string
	cost     string
	epochs   int
	rate     float64
	batch    int
	workers  int
	seed     int64
	every    int
	maxCost  float64
	csvPath  string
	targets  int
	dotPath  string
	savePath string
	envFile  string
	record   bool
	verbose  bool
}

func parseFlags(args []string, stderr io.Writer) (opts *options, err error) {
	opts = &options{}
	fs := flag.NewFlagSet("mlp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.shape, "shape", "(xor a b (sigmoid 3) (sigmoid y))", "network shape")
	fs.StringVar(&opts.cost, "cost", "mse", "cost function: mse or cross-entropy")
	fs.IntVar(&opts.epochs, "epochs", 5000, "training epochs")
	fs.Float64Var(&opts.rate, "rate", 10, "learning rate")
	fs.IntVar(&opts.batch, "batch", 64, "points sampled per epoch")
	fs.IntVar(&opts.workers, "workers", 1, "parallel gradient workers")
	fs.Int64Var(&opts.seed, "seed", 1, "random seed")
	fs.IntVar(&opts.every, "every", 500, "checkpoint every n epochs")
	fs.Float64Var(&opts.maxCost, "maxcost", 0, "stop when the mean cost drops below this")
	fs.StringVar(&opts.csvPath, "csv", "", "training data csv; targets are the last columns")
	fs.IntVar(&opts.targets, "targets", 1, "number of target columns in the csv")
	fs.StringVar(&opts.dotPath, "dot", "", "write a graphviz rendering of the trained network here")
	fs.StringVar(&opts.savePath, "save", "", "write the trained network as JSON here")
	fs.StringVar(&opts.envFile, "env", "", "env file with database settings")
	fs.BoolVar(&opts.record, "record", false, "record the run in the database")
	fs.BoolVar(&opts.verbose, "v", false, "print checkpoints")
	err = fs.Parse(args)
	return
}

func xor() *mlp.DataSet {
	return mlp.NewDataSet(
		[][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		[][]float64{{0}, {1}, {1}, {0}},
	)
}

func loadData(opts *options) (ds *mlp.DataSet, err error) {
	if opts.csvPath == "" {
		return xor(), nil
	}
	fh, err := os.Open(opts.csvPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening training data")
	}
	defer fh.Close()
	return mlp.ReadCSV(fh, opts.targets)
}

func run(args []string, stdout, stderr io.Writer) (err error) {
	defer Return(&err)
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return
	}

	rng := rand.New(rand.NewSource(opts.seed))
	net, err := mlp.ParseShape(opts.shape, rng)
	Ck(err)
	net.Cost, err = mlp.ParseCost(opts.cost)
	Ck(err)
	ds, err := loadData(opts)
	Ck(err)
	if ds.InputCount() != net.InputCount() || ds.TargetCount() != net.OutputCount() {
		return errors.Errorf("shape %s wants %d inputs and %d outputs, data has %d and %d",
			net.Name, net.InputCount(), net.OutputCount(), ds.InputCount(), ds.TargetCount())
	}

	parms := mlp.TrainingParms{
		Epochs:          opts.epochs,
		LearningRate:    opts.rate,
		BatchSize:       opts.batch,
		Workers:         opts.workers,
		CheckpointEvery: opts.every,
		MaxCost:         opts.maxCost,
		Verbose:         opts.verbose,
	}

	var store *runlog.Store
	var runID int64
	ctx := context.Background()
	if opts.record {
		var cfg *runlog.Config
		if opts.envFile != "" {
			cfg, err = runlog.ConfigFromEnv(opts.envFile)
		} else {
			cfg, err = runlog.ConfigFromEnv()
		}
		Ck(err)
		db, err := runlog.Open(cfg)
		Ck(err)
		defer db.Close()
		store = runlog.NewStore(db, cfg)
		Ck(store.CreateTables(ctx))
		runID, err = store.StartRun(ctx, runlog.Run{
			Name:         net.Name,
			Shape:        net.Shape().String(),
			Seed:         opts.seed,
			Epochs:       opts.epochs,
			LearningRate: opts.rate,
			BatchSize:    opts.batch,
		})
		Ck(err)
		parms.OnCheckpoint = store.Recorder(ctx, runID)
	}

	tc := mlp.NewTrainingContext(net, ds, rng)
	cost, trainErr := tc.TrainWithParms(parms)
	if store != nil {
		status := runlog.StatusFinished
		if trainErr != nil {
			status = runlog.StatusFailed
		}
		Ck(store.FinishRun(ctx, runID, status, cost))
	}
	if trainErr != nil {
		return errors.Wrapf(trainErr, "training %s after %d epochs", net.Name, tc.Epoch())
	}

	fmt.Fprintf(stdout, "%s: %d epochs, mean cost %g\n", net.Shape(), tc.Epoch(), cost)
	for _, p := range ds.Points {
		outputs, err := net.CalculateOutputs(p.Inputs)
		Ck(err)
		fmt.Fprintf(stdout, "%v -> %.4f (want %v)\n", p.Inputs, outputs, p.Targets)
	}

	if opts.dotPath != "" {
		err = os.WriteFile(opts.dotPath, []byte(net.Draw()), 0644)
		Ck(err)
	}
	if opts.savePath != "" {
		err = os.WriteFile(opts.savePath, []byte(net.Save()), 0644)
		Ck(err)
	}
	return
}

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mlp: %v\n", err)
		os.Exit(1)
	}
}
