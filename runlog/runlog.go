// Package runlog records training runs and their cost checkpoints in
// a MySQL database.  Each checkpoint carries the network's genome, so
// any point of a run can be restored with mlp.NetworkFromDNA.
package runlog

import (
	"context"
	"database/sql"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/beevik/ntp"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"

	"github.com/stevegt/mlp"
)

// Run status values.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Execer is the subset of *sql.DB the store needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Clock returns the current time.
type Clock func() time.Time

// NTPClock returns a clock that asks server for the time, falling back
// to the local clock when the server can't be reached.
func NTPClock(server string) Clock {
	return func() time.Time {
		t, err := ntp.Time(server)
		if err != nil {
			Debug("ntp %s: %v, using local clock\n", server, err)
			return time.Now()
		}
		return t
	}
}

// Run describes a training run.
type Run struct {
	Name         string
	Shape        string
	Seed         int64
	Epochs       int
	LearningRate float64
	BatchSize    int
}

// Store writes runs and checkpoints to the database.
type Store struct {
	db     Execer
	prefix string
	now    Clock
	// Host is recorded with every run.
	Host string
}

// NewStore creates a store writing to db.  Times come from the
// config's NTP server if one is set.
func NewStore(db Execer, cfg *Config) (s *Store) {
	s = &Store{
		db:     db,
		prefix: cfg.TablePrefix,
		now:    time.Now,
	}
	if cfg.NTPServer != "" {
		s.now = NTPClock(cfg.NTPServer)
	}
	host, err := os.Hostname()
	if err != nil {
		host = os.Getenv("HOSTNAME")
	}
	s.Host = host
	return
}

// SetClock replaces the store's clock.
func (s *Store) SetClock(now Clock) {
	s.now = now
}

func (s *Store) runs() string        { return s.prefix + "runs" }
func (s *Store) checkpoints() string { return s.prefix + "checkpoints" }

// Schema returns the statements that create the store's tables.
func (s *Store) Schema() []string {
	return []string{
		Spf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	host VARCHAR(255),
	program_version VARCHAR(64),
	name VARCHAR(255),
	shape TEXT,
	seed BIGINT,
	epochs INT,
	learning_rate DOUBLE,
	batch_size INT,
	start_time DATETIME,
	end_time DATETIME NULL,
	status VARCHAR(16),
	final_cost DOUBLE NULL
)`, s.runs()),
		Spf(`CREATE TABLE IF NOT EXISTS %s (
	run_id BIGINT,
	epoch INT,
	cost DOUBLE,
	dna BLOB,
	PRIMARY KEY (run_id, epoch)
)`, s.checkpoints()),
	}
}

// CreateTables creates the store's tables if they don't exist.
func (s *Store) CreateTables(ctx context.Context) (err error) {
	for _, stmt := range s.Schema() {
		_, err = s.db.ExecContext(ctx, stmt)
		if err != nil {
			return errors.Wrap(err, "creating tables")
		}
	}
	return
}

// StartRun records the start of a run and returns its id.
func (s *Store) StartRun(ctx context.Context, run Run) (runID int64, err error) {
	query := Spf("INSERT INTO %s (host, program_version, name, shape, seed, epochs, learning_rate, batch_size, start_time, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.runs())
	res, err := s.db.ExecContext(ctx, query, s.Host, runtime.Version(), run.Name, run.Shape, run.Seed, run.Epochs, run.LearningRate, run.BatchSize, s.now().UTC(), StatusRunning)
	if err != nil {
		return 0, errors.Wrapf(err, "starting run %s", run.Name)
	}
	runID, err = res.LastInsertId()
	if err != nil {
		return 0, errors.Wrapf(err, "starting run %s", run.Name)
	}
	return
}

// Checkpoint is the state of a run at one epoch.
type Checkpoint struct {
	Epoch int
	Cost  float64
	DNA   []byte
}

// RecordCheckpoint records a checkpoint of run runID.
func (s *Store) RecordCheckpoint(ctx context.Context, runID int64, cp Checkpoint) (err error) {
	query := Spf("INSERT INTO %s (run_id, epoch, cost, dna) VALUES (?, ?, ?, ?)", s.checkpoints())
	_, err = s.db.ExecContext(ctx, query, runID, cp.Epoch, cp.Cost, cp.DNA)
	if err != nil {
		return errors.Wrapf(err, "recording checkpoint %d of run %d", cp.Epoch, runID)
	}
	return
}

// FinishRun records the end of run runID with the given status and
// final cost.  A cost that is not finite, as left by an unstable run,
// is stored as NULL.
func (s *Store) FinishRun(ctx context.Context, runID int64, status string, cost float64) (err error) {
	finalCost := sql.NullFloat64{
		Float64: cost,
		Valid:   !math.IsNaN(cost) && !math.IsInf(cost, 0),
	}
	query := Spf("UPDATE %s SET end_time = ?, status = ?, final_cost = ? WHERE id = ?", s.runs())
	_, err = s.db.ExecContext(ctx, query, s.now().UTC(), status, finalCost, runID)
	if err != nil {
		return errors.Wrapf(err, "finishing run %d", runID)
	}
	return
}

// Recorder returns a checkpoint hook for mlp.TrainingParms that
// records every checkpoint of run runID with the network's genome.
func (s *Store) Recorder(ctx context.Context, runID int64) func(mlp.Checkpoint) error {
	return func(cp mlp.Checkpoint) error {
		return s.RecordCheckpoint(ctx, runID, Checkpoint{
			Epoch: cp.Epoch,
			Cost:  cp.Cost,
			DNA:   cp.Net.DNA().AsBytes(),
		})
	}
}
