// Package ml scores the fixed feature vector with gradient-boosted tree
// ensembles loaded from LightGBM-style JSON dumps.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"solana-momentum-bot/internal/domain"
)

// Node is a single tree node. Leaves carry LeafValue; internal nodes carry
// a split and two children.
type Node struct {
	SplitFeature *int     `json:"split_feature"`
	Threshold    float64  `json:"threshold"`
	LeftChild    *Node    `json:"left_child"`
	RightChild   *Node    `json:"right_child"`
	LeafValue    *float64 `json:"leaf_value"`
}

// tree wraps the per-tree structure in the dump format.
type tree struct {
	TreeStructure *Node `json:"tree_structure"`
}

// Model is a binary-classification tree ensemble.
type Model struct {
	InitScore float64 `json:"init_score"`
	NumTrees  int     `json:"num_trees"`
	TreeInfo  []tree  `json:"tree_info"`
}

// LoadModel reads and validates an ensemble dump from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(m.TreeInfo) == 0 {
		return nil, fmt.Errorf("model %s: no trees", path)
	}
	for i, t := range m.TreeInfo {
		if t.TreeStructure == nil {
			return nil, fmt.Errorf("model %s: tree %d has no structure", path, i)
		}
	}
	return &m, nil
}

// Predict scores the feature vector and returns the positive-class
// probability sigma(init_score + sum of leaf values).
func (m *Model) Predict(feats domain.FeatureVector) float64 {
	score := m.InitScore
	for _, t := range m.TreeInfo {
		score += descend(t.TreeStructure, feats)
	}
	return sigmoid(score)
}

// descend walks one tree to its leaf. A split on an out-of-range feature
// reads as 0, matching the missing-value default.
func descend(n *Node, feats domain.FeatureVector) float64 {
	for n != nil {
		if n.LeafValue != nil {
			return *n.LeafValue
		}
		var v float64
		if n.SplitFeature != nil && *n.SplitFeature >= 0 && *n.SplitFeature < domain.FeatureCount {
			v = feats[*n.SplitFeature]
		}
		if v <= n.Threshold {
			n = n.LeftChild
		} else {
			n = n.RightChild
		}
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
