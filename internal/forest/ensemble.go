// Package forest implements the multi-output regressor behind recommendations:
// one bagged ensemble of regression trees per model output, stored as JSON.
package forest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/nourish/internal/common"
)

// Regressor maps an aligned feature vector to one value per model output.
type Regressor interface {
	Predict(x []float64) ([]float64, error)
}

// Model validation errors.
var (
	ErrNoOutputs    = errors.New("model has no outputs")
	ErrEmptyForest  = errors.New("forest has no trees")
	ErrMalformed    = errors.New("malformed tree")
	ErrFeatureCount = fmt.Errorf("%w: feature count", common.ErrSchemaMismatch)
)

// leaf marks a node without children.
const leaf = -1

// Node is one tree node. Internal nodes send x[Feature] <= Threshold left.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// IsLeaf reports whether n is a leaf.
func (n Node) IsLeaf() bool { return n.Left == leaf }

// Tree is a regression tree stored as a flat node list; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x down the tree.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root to leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrMalformed)
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", ErrMalformed, i, n.Feature, features)
		}
		// Children always follow their parent, which rules out cycles.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has children %d,%d", ErrMalformed, i, n.Left, n.Right)
		}
	}
	return nil
}

// Forest averages the predictions of its trees.
type Forest struct {
	Output string `json:"output"`
	Trees  []Tree `json:"trees"`
}

// Predict returns the mean tree prediction.
func (f *Forest) Predict(x []float64) float64 {
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// Ensemble is a multi-output regressor: Forests[i] predicts output i.
type Ensemble struct {
	Forests      []Forest `json:"forests"`
	FeatureCount int      `json:"feature_count"`
}

// Outputs returns the output names in prediction order.
func (e *Ensemble) Outputs() []string {
	out := make([]string, len(e.Forests))
	for i, f := range e.Forests {
		out[i] = f.Output
	}
	return out
}

// Predict returns one value per output. x must have FeatureCount entries.
func (e *Ensemble) Predict(x []float64) ([]float64, error) {
	if len(x) != e.FeatureCount {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrFeatureCount, len(x), e.FeatureCount)
	}
	out := make([]float64, len(e.Forests))
	for i := range e.Forests {
		out[i] = e.Forests[i].Predict(x)
	}
	return out, nil
}

// Validate checks the ensemble is structurally sound so Predict cannot index
// out of range.
func (e *Ensemble) Validate() error {
	if len(e.Forests) == 0 {
		return ErrNoOutputs
	}
	if e.FeatureCount <= 0 {
		return fmt.Errorf("%w: feature count %d", ErrMalformed, e.FeatureCount)
	}
	for _, f := range e.Forests {
		if len(f.Trees) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyForest, f.Output)
		}
		for j := range f.Trees {
			if err := f.Trees[j].validate(e.FeatureCount); err != nil {
				return fmt.Errorf("%s tree %d: %w", f.Output, j, err)
			}
		}
	}
	return nil
}

// Read decodes and validates an ensemble.
func Read(r io.Reader) (*Ensemble, error) {
	var e Ensemble
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Write encodes the ensemble.
func (e *Ensemble) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
