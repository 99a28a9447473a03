package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Node is one node of a binary decision tree. Leaves carry Value, the
// fraud probability at that leaf; internal nodes send x[Feature] <= Threshold
// to Left and everything else to Right.
type Node struct {
	Feature   int      `json:"feature"`
	Threshold float64  `json:"threshold"`
	Left      int      `json:"left"`
	Right     int      `json:"right"`
	Value     *float64 `json:"value,omitempty"`
}

// Tree is a decision tree artifact exported at training time.
type Tree struct {
	Model    string `json:"model"`
	Version  string `json:"version"`
	Features int    `json:"n_features"`
	Nodes    []Node `json:"nodes"`
}

// LoadTree reads a tree artifact. Any problem with the file is reported as
// ErrModelUnavailable.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: corrupt model artifact: %v", ErrModelUnavailable, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return &t, nil
}

// Info describes a loaded model.
type Info struct {
	Model    string `json:"model_type"`
	Version  string `json:"version,omitempty"`
	Features int    `json:"features_count"`
	// Source is "local" for an in-process tree and the NATS subject for a
	// remote scorer.
	Source string `json:"source"`
}

func (t *Tree) Info() Info {
	return Info{Model: t.Model, Version: t.Version, Features: t.Features, Source: "local"}
}

// CheckFeatures reports ErrModelUnavailable when the tree was trained on a
// vector of a different length than n.
func (t *Tree) CheckFeatures(n int) error {
	if t.Features != n {
		return fmt.Errorf("%w: model expects %d features, preprocessor produces %d", ErrModelUnavailable, t.Features, n)
	}
	return nil
}

// validate checks that every split references a valid feature and that
// children always point forward, which rules out cycles.
func (t *Tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("model artifact has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Value != nil {
			if *n.Value < 0 || *n.Value > 1 {
				return fmt.Errorf("node %d: leaf value %v outside [0,1]", i, *n.Value)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= t.Features {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// Score walks the tree from the root to a leaf.
func (t *Tree) Score(_ context.Context, features []float64) (float64, error) {
	if len(features) != t.Features {
		return 0, fmt.Errorf("expected %d features, got %d", t.Features, len(features))
	}

	i := 0
	for {
		n := t.Nodes[i]
		if n.Value != nil {
			return *n.Value, nil
		}
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
