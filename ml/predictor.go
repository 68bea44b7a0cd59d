package ml

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// MaxBatchSize is the largest batch PredictBatch accepts.
const MaxBatchSize = 100

type PredictionResult struct {
	ChurnPrediction    int     `json:"churn_prediction"`
	ChurnProbability   float64 `json:"churn_probability"`
	NoChurnProbability float64 `json:"no_churn_probability"`
}

type BatchPrediction struct {
	CustomerIndex int `json:"customer_index"`
	PredictionResult
}

type ModelInfo struct {
	ModelLoaded  bool       `json:"model_loaded"`
	ModelType    string     `json:"model_type,omitempty"`
	Accuracy     *float64   `json:"accuracy,omitempty"`
	FeatureNames []string   `json:"feature_names,omitempty"`
	TrainedAt    *time.Time `json:"trained_at,omitempty"`
	NEstimators  int        `json:"n_estimators,omitempty"`
	Generation   uint64     `json:"generation,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type loadedModel struct {
	artifact   *ModelArtifact
	generation uint64
}

type cacheKey struct {
	generation uint64
	vector     string
}

// Predictor serves predictions from an immutable ModelArtifact. The artifact
// is replaced as a whole through an atomic pointer, so concurrent readers see
// either the old or the new model, never a mix.
type Predictor struct {
	path       string
	logger     *zap.Logger
	cacheSize  int
	cache      *lru.Cache[cacheKey, PredictionResult]
	current    atomic.Pointer[loadedModel]
	generation atomic.Uint64
}

type Option func(*Predictor)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCacheSize enables an LRU of recent predictions. Zero disables it.
func WithCacheSize(size int) Option {
	return func(p *Predictor) {
		p.cacheSize = size
	}
}

// NewPredictor loads the artifact at path. A missing or corrupt artifact is
// logged and leaves the predictor not ready; it never fails construction.
func NewPredictor(path string, opts ...Option) *Predictor {
	p := &Predictor{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.cacheSize > 0 {
		cache, err := lru.New[cacheKey, PredictionResult](p.cacheSize)
		if err != nil {
			p.logger.Warn("prediction cache disabled", zap.Error(err))
		} else {
			p.cache = cache
		}
	}
	if path != "" {
		if err := p.Load(); err != nil {
			p.logger.Warn("model not loaded, train the model first", zap.String("path", path), zap.Error(err))
		}
	}
	return p
}

func (p *Predictor) Path() string {
	return p.path
}

// Load reads the artifact from disk and swaps it in. On error the current
// artifact, if any, stays in place.
func (p *Predictor) Load() error {
	artifact, err := LoadArtifact(p.path)
	if err != nil {
		return err
	}
	return p.Swap(artifact)
}

// Swap installs artifact as the serving model.
func (p *Predictor) Swap(artifact *ModelArtifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	gen := p.generation.Add(1)
	p.current.Store(&loadedModel{artifact: artifact, generation: gen})
	if p.cache != nil {
		p.cache.Purge()
	}
	p.logger.Info("model loaded",
		zap.Float64("accuracy", artifact.Accuracy),
		zap.Uint64("generation", gen),
		zap.Int("trees", len(artifact.Model.Trees)),
	)
	return nil
}

func (p *Predictor) Ready() bool {
	return p.current.Load() != nil
}

func (p *Predictor) Generation() uint64 {
	if m := p.current.Load(); m != nil {
		return m.generation
	}
	return 0
}

// Serving returns the artifact and its generation from a single load, so the
// pair always belongs together. It returns nil, 0 when no model is loaded.
// Callers must not modify the artifact.
func (p *Predictor) Serving() (*ModelArtifact, uint64) {
	if m := p.current.Load(); m != nil {
		return m.artifact, m.generation
	}
	return nil, 0
}

// PredictSingle expects a record that already passed validation.
func (p *Predictor) PredictSingle(record CustomerRecord) (PredictionResult, error) {
	m := p.current.Load()
	if m == nil {
		return PredictionResult{}, ErrModelNotLoaded
	}
	return p.predict(m, record)
}

// PredictBatch predicts each record independently against one artifact and
// keeps the input order.
func (p *Predictor) PredictBatch(records []CustomerRecord) ([]BatchPrediction, error) {
	if len(records) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	m := p.current.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	results := make([]BatchPrediction, len(records))
	for i, record := range records {
		result, err := p.predict(m, record)
		if err != nil {
			return nil, fmt.Errorf("customer %d: %w", i, err)
		}
		results[i] = BatchPrediction{CustomerIndex: i, PredictionResult: result}
	}
	return results, nil
}

func (p *Predictor) GetModelInfo() ModelInfo {
	m := p.current.Load()
	if m == nil {
		return ModelInfo{ModelLoaded: false, Error: "Model not loaded"}
	}
	a := m.artifact
	accuracy := a.Accuracy
	trainedAt := a.TrainedAt
	return ModelInfo{
		ModelLoaded:  true,
		ModelType:    a.ModelType,
		Accuracy:     &accuracy,
		FeatureNames: append([]string(nil), a.FeatureNames...),
		TrainedAt:    &trainedAt,
		NEstimators:  len(a.Model.Trees),
		Generation:   m.generation,
	}
}

func (p *Predictor) predict(m *loadedModel, record CustomerRecord) (PredictionResult, error) {
	vector, err := m.artifact.Codec.Encode(record)
	if err != nil {
		return PredictionResult{}, err
	}

	var key cacheKey
	if p.cache != nil {
		key = cacheKey{generation: m.generation, vector: vectorKey(vector)}
		if result, ok := p.cache.Get(key); ok {
			return result, nil
		}
	}

	proba, err := m.artifact.Model.PredictProba(vector)
	if err != nil {
		return PredictionResult{}, err
	}
	label := argmax(proba)
	result := PredictionResult{
		ChurnPrediction:    label,
		ChurnProbability:   proba[1],
		NoChurnProbability: proba[0],
	}
	p.logger.Debug("prediction",
		zap.Int("churn_prediction", result.ChurnPrediction),
		zap.Float64("churn_probability", result.ChurnProbability),
	)

	if p.cache != nil {
		p.cache.Add(key, result)
	}
	return result, nil
}

func vectorKey(vector FeatureVector) string {
	buf := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return string(buf)
}
