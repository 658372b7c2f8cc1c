package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DecisionTree is a flattened binary tree exported from a trained classifier. Node 0
// is the root; a sample goes left when its feature value is <= the node threshold.
type DecisionTree struct {
	nodes     []TreeNode
	nFeatures int
	path      string
}

// TreeNode is one entry of the flattened tree. Children are indexes into the node list.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"` // class counts or probabilities, leaves only
}

type treeFile struct {
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

// LoadDecisionTree reads a JSON tree from path and rejects structurally broken ones.
func LoadDecisionTree(path string) (*DecisionTree, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read decision tree %s: %w", path, err)
	}
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("failed to parse decision tree %s: %w", path, err)
	}
	dt := &DecisionTree{nodes: file.Nodes, nFeatures: file.NFeatures, path: path}
	if err := dt.check(); err != nil {
		return nil, fmt.Errorf("invalid decision tree %s: %w", path, err)
	}
	return dt, nil
}

func (dt *DecisionTree) check() error {
	if len(dt.nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if len(node.Value) <= PositiveClass {
				return fmt.Errorf("leaf %d has %d classes", i, len(node.Value))
			}
			if leafMass(node.Value) <= 0 {
				return fmt.Errorf("leaf %d has no positive mass", i)
			}
			continue
		}
		if node.FeatureIdx < 0 || (dt.nFeatures > 0 && node.FeatureIdx >= dt.nFeatures) {
			return fmt.Errorf("node %d splits on feature %d", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= 0 || child >= len(dt.nodes) || child == i {
				return fmt.Errorf("node %d points to child %d", i, child)
			}
		}
	}
	return nil
}

// PredictProba returns the normalized class distribution of the leaf features reach.
func (dt *DecisionTree) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not loaded")
	}
	idx := 0
	// a well-formed tree reaches a leaf in fewer steps than it has nodes
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return normalize(node.Value), nil
		}
		if node.FeatureIdx >= len(features) {
			return nil, fmt.Errorf("feature index %d out of range", node.FeatureIdx)
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return nil, errors.New("invalid tree state: cycle detected")
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.nFeatures
}

func (dt *DecisionTree) Info() string {
	return fmt.Sprintf("decision tree, %d nodes, %s", len(dt.nodes), dt.path)
}

func leafMass(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		if v < 0 {
			return -1
		}
		total += v
	}
	return total
}

func normalize(values []float64) []float64 {
	total := leafMass(values)
	dist := make([]float64, len(values))
	for i, v := range values {
		dist[i] = v / total
	}
	return dist
}
