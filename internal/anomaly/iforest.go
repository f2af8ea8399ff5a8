package anomaly

import (
	"math"
	"math/rand"

	"github.com/glowmesh/fusion-engine/internal/models"
)

const (
	forestTrees     = 100
	forestScoreFlag = 0.6
	eulerMascheroni = 0.5772156649
)

type isolationNode struct {
	splitValue  float64
	left, right *isolationNode
	size        int
}

type isolationTree struct {
	root *isolationNode
}

// detectIsolationForest scores each point by its average isolation depth
// across the forest. Points scoring above 0.6 are flagged, with the score
// scaled by ten to sit alongside Z-scores in the merged list.
func (d *Detector) detectIsolationForest(data []float64) []models.Anomaly {
	if len(data) < 100 {
		return nil
	}

	sampleSize := len(data) / 4
	if sampleSize > 256 {
		sampleSize = 256
	}

	trees := make([]isolationTree, forestTrees)
	for i := range trees {
		trees[i] = buildTree(data, sampleSize, d.rng)
	}

	c := expectedPathLength(sampleSize)
	if c < eps {
		return nil
	}

	var out []models.Anomaly
	for i, x := range data {
		var total float64
		for _, tree := range trees {
			total += tree.pathLength(x)
		}
		avgDepth := total / forestTrees

		score := math.Pow(2, -avgDepth/c)
		if score <= forestScoreFlag {
			continue
		}
		out = append(out, models.Anomaly{
			Index:      i,
			Value:      x,
			Score:      score * 10,
			Kind:       models.AnomalyPoint,
			Confidence: score,
		})
	}
	return out
}

func buildTree(data []float64, sampleSize int, rng *rand.Rand) isolationTree {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}

	sample := make([]float64, sampleSize)
	perm := rng.Perm(len(data))
	for i := 0; i < sampleSize; i++ {
		sample[i] = data[perm[i]]
	}

	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	return isolationTree{root: buildNode(sample, 0, maxDepth, rng)}
}

func buildNode(data []float64, depth, maxDepth int, rng *rand.Rand) *isolationNode {
	if len(data) == 0 || depth >= maxDepth {
		return nil
	}
	if len(data) == 1 {
		return &isolationNode{splitValue: data[0], size: 1}
	}

	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max-min < eps {
		return &isolationNode{splitValue: min, size: len(data)}
	}

	split := min + rng.Float64()*(max-min)

	var left, right []float64
	for _, v := range data {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &isolationNode{
		splitValue: split,
		left:       buildNode(left, depth+1, maxDepth, rng),
		right:      buildNode(right, depth+1, maxDepth, rng),
		size:       len(data),
	}
}

func (t isolationTree) pathLength(value float64) float64 {
	depth := 0.0
	node := t.root
	for node != nil {
		if node.left == nil && node.right == nil {
			return depth + expectedPathLength(node.size)
		}
		depth++
		if value < node.splitValue {
			node = node.left
		} else {
			node = node.right
		}
	}
	return depth
}

// expectedPathLength is the average unsuccessful BST search length c(n).
func expectedPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	f := float64(n)
	return 2*(math.Log(f)+eulerMascheroni) - 2*(f-1)/f
}
