package mlp

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
)

// DataPoint is a single training example.
type DataPoint struct {
	Inputs  []float64
	Targets []float64
}

// DataSet is an ordered set of training examples.  Every point has the
// same input width and the same target width.
type DataSet struct {
	Points []*DataPoint
}

// NewDataSet creates a data set from parallel slices of input and
// target vectors.
func NewDataSet(inputs, targets [][]float64) (ds *DataSet) {
	Assert(len(inputs) == len(targets), "got %d input vectors and %d target vectors", len(inputs), len(targets))
	ds = &DataSet{}
	for i := range inputs {
		ds.Add(inputs[i], targets[i])
	}
	return
}

// Add adds a training example to the set.
func (ds *DataSet) Add(inputs, targets []float64) {
	if len(ds.Points) > 0 {
		first := ds.Points[0]
		Assert(len(inputs) == len(first.Inputs), "point %d has %d inputs, expected %d", len(ds.Points), len(inputs), len(first.Inputs))
		Assert(len(targets) == len(first.Targets), "point %d has %d targets, expected %d", len(ds.Points), len(targets), len(first.Targets))
	}
	ds.Points = append(ds.Points, &DataPoint{Inputs: inputs, Targets: targets})
}

// Append appends the given data set to this one, returning a new data
// set.
func (ds *DataSet) Append(other *DataSet) (newSet *DataSet) {
	newSet = &DataSet{}
	for _, p := range ds.Points {
		newSet.Add(p.Inputs, p.Targets)
	}
	for _, p := range other.Points {
		newSet.Add(p.Inputs, p.Targets)
	}
	return
}

// Len returns the number of points in the set.
func (ds *DataSet) Len() int {
	return len(ds.Points)
}

// InputCount returns the input width of the set's points.
func (ds *DataSet) InputCount() int {
	Assert(len(ds.Points) > 0, "empty data set")
	return len(ds.Points[0].Inputs)
}

// TargetCount returns the target width of the set's points.
func (ds *DataSet) TargetCount() int {
	Assert(len(ds.Points) > 0, "empty data set")
	return len(ds.Points[0].Targets)
}

// SelectRandom returns a uniformly chosen point and its index.
// Repeated calls sample with replacement.
func (ds *DataSet) SelectRandom(rng Rand) (p *DataPoint, idx int) {
	Assert(len(ds.Points) > 0, "cannot sample from an empty data set")
	idx = orGlobal(rng).Intn(len(ds.Points))
	return ds.Points[idx], idx
}

// ReadCSV reads a data set from comma-separated rows of numbers.  The
// last targetCount columns of each row are targets and the rest are
// inputs.  A first row that does not parse as numbers is skipped as a
// header.
func ReadCSV(r io.Reader, targetCount int) (ds *DataSet, err error) {
	Assert(targetCount > 0, "targetCount must be positive")
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	ds = &DataSet{}
	for row := 1; ; row++ {
		var rec []string
		rec, err = cr.Read()
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		if len(rec) <= targetCount {
			return nil, errors.Errorf("row %d: %d columns, need more than %d", row, len(rec), targetCount)
		}
		vals := make([]float64, len(rec))
		for i, field := range rec {
			vals[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				break
			}
		}
		if err != nil {
			if row == 1 {
				Debug("skipping csv header %v\n", rec)
				err = nil
				continue
			}
			return nil, errors.Wrapf(err, "row %d", row)
		}
		if ds.Len() > 0 && len(vals) != ds.InputCount()+ds.TargetCount() {
			return nil, errors.Errorf("row %d: %d columns, expected %d", row, len(vals), ds.InputCount()+ds.TargetCount())
		}
		split := len(vals) - targetCount
		ds.Add(vals[:split], vals[split:])
	}
	if ds.Len() == 0 {
		return nil, errors.New("csv has no data rows")
	}
	return
}
