package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier stored as a flat node slice; children are
// referenced by index into Nodes.
type DecisionTree struct {
	Nodes     []TreeNode
	NFeatures int
	NClasses  int
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Value      []float64 `json:"value"`
	IsLeaf     bool      `json:"is_leaf"`
}

type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the number of features drawn per split; 0 means all.
	MaxFeatures int
}

// Fit grows the tree on all rows with unit weights.
func (dt *DecisionTree) Fit(features [][]float64, labels []int, params TreeParams, rng *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	weights := make([]float64, len(features))
	rows := make([]int, len(features))
	for i := range weights {
		weights[i] = 1
		rows[i] = i
	}
	return dt.fit(features, labels, weights, rows, numClasses(labels), params, rng)
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, weights []float64, rows []int, nClasses int, params TreeParams, rng *rand.Rand) error {
	if len(features) != len(labels) || len(features) != len(weights) {
		return errors.New("features and labels size mismatch")
	}
	if len(rows) == 0 {
		return errors.New("no rows to fit")
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = 3
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	nFeatures := len(features[0])
	if params.MaxFeatures <= 0 || params.MaxFeatures > nFeatures {
		params.MaxFeatures = nFeatures
	}

	b := &treeBuilder{
		features: features,
		labels:   labels,
		weights:  weights,
		params:   params,
		rng:      rng,
		nClasses: nClasses,
	}
	b.build(rows, 0)

	dt.Nodes = b.nodes
	dt.NFeatures = nFeatures
	dt.NClasses = nClasses
	return nil
}

// PredictProba returns the class distribution of the leaf reached by features.
// The returned slice is shared with the tree and must not be modified.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := argmax(proba)
	return label, proba[label], nil
}

// Depth returns the length of the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

type treeBuilder struct {
	features [][]float64
	labels   []int
	weights  []float64
	params   TreeParams
	rng      *rand.Rand
	nClasses int
	nodes    []TreeNode
}

func (b *treeBuilder) build(rows []int, depth int) int {
	counts := b.classWeights(rows)
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      normalize(counts),
		IsLeaf:     true,
	})

	if depth >= b.params.MaxDepth || len(rows) < b.params.MinSamplesSplit || isPure(counts) {
		return nodeIdx
	}

	feature, threshold, ok := b.findBestSplit(rows, counts)
	if !ok {
		return nodeIdx
	}

	leftRows := make([]int, 0, len(rows))
	rightRows := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.features[r][feature] <= threshold {
			leftRows = append(leftRows, r)
		} else {
			rightRows = append(rightRows, r)
		}
	}
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return nodeIdx
	}

	left := b.build(leftRows, depth+1)
	right := b.build(rightRows, depth+1)

	node := &b.nodes[nodeIdx]
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = left
	node.RightChild = right
	node.IsLeaf = false
	return nodeIdx
}

// findBestSplit evaluates up to MaxFeatures non-constant features, drawn in
// random order, and returns the split with the lowest weighted gini impurity.
func (b *treeBuilder) findBestSplit(rows []int, total []float64) (int, float64, bool) {
	totalWeight := sum(total)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(rows))
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)

	evaluated := 0
	for _, feature := range b.rng.Perm(len(b.features[0])) {
		if evaluated >= b.params.MaxFeatures {
			break
		}
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][feature] < b.features[sorted[j]][feature]
		})
		lo := b.features[sorted[0]][feature]
		hi := b.features[sorted[len(sorted)-1]][feature]
		if lo == hi {
			continue
		}
		evaluated++

		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}
		leftWeight := 0.0
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			w := b.weights[r]
			left[b.labels[r]] += w
			right[b.labels[r]] -= w
			leftWeight += w

			current := b.features[r][feature]
			next := b.features[sorted[i+1]][feature]
			if current == next {
				continue
			}
			if i+1 < b.params.MinSamplesLeaf || len(sorted)-i-1 < b.params.MinSamplesLeaf {
				continue
			}
			rightWeight := totalWeight - leftWeight
			impurity := (leftWeight*gini(left, leftWeight) + rightWeight*gini(right, rightWeight)) / totalWeight
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = current + (next-current)/2
				if bestThreshold >= next {
					bestThreshold = current
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) classWeights(rows []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, r := range rows {
		counts[b.labels[r]] += b.weights[r]
	}
	return counts
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func normalize(counts []float64) []float64 {
	out := make([]float64, len(counts))
	total := sum(counts)
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func numClasses(labels []int) int {
	n := 2
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	return n
}
