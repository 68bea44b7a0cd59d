package ml

// Classifier is a fitted binary/multiclass model over feature vectors.
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
}

// Predictor interface consumed by the HTTP layer.
type ChurnPredictor interface {
	PredictSingle(record CustomerRecord) (PredictionResult, error)
	PredictBatch(records []CustomerRecord) ([]BatchPrediction, error)
	GetModelInfo() ModelInfo
	Ready() bool
}
