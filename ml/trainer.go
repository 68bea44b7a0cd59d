package ml

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type TrainConfig struct {
	Samples   int
	Seed      int64
	TestRatio float64
	Forest    ForestParams
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Samples:   1000,
		Seed:      42,
		TestRatio: 0.2,
		Forest:    DefaultForestParams(),
	}
}

type TrainResult struct {
	Artifact *ModelArtifact
	Dataset  []LabeledRecord
	Duration time.Duration
}

// Train generates the synthetic dataset, fits the codec on the training split
// only, fits the forest and scores it on the held-out split.
func Train(cfg TrainConfig, logger *zap.Logger) (*TrainResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Samples <= 0 {
		return nil, errors.New("samples must be positive")
	}
	start := time.Now()

	logger.Info("preparing training data", zap.Int("samples", cfg.Samples), zap.Int64("seed", cfg.Seed))
	data := CreateSampleData(cfg.Samples, cfg.Seed)
	labels := make([]int, len(data))
	for i, row := range data {
		labels[i] = row.Churn
	}

	trainIdx, testIdx, err := StratifiedSplit(labels, cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	trainRecords, trainY := gather(data, trainIdx)
	testRecords, testY := gather(data, testIdx)

	codec, trainX, err := FitCodec(trainRecords)
	if err != nil {
		return nil, fmt.Errorf("fit codec: %w", err)
	}
	testX, err := codec.EncodeBatch(testRecords)
	if err != nil {
		return nil, fmt.Errorf("encode test split: %w", err)
	}

	logger.Info("training random forest",
		zap.Int("n_estimators", cfg.Forest.NEstimators),
		zap.Int("max_depth", cfg.Forest.MaxDepth),
		zap.String("class_weight", cfg.Forest.ClassWeight),
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
	)
	forest := NewRandomForest(cfg.Forest)
	if err := forest.Fit(vectors(trainX), trainY); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	report, err := Evaluate(forest, vectors(testX), testY)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	artifact := &ModelArtifact{
		ModelType:    ModelTypeRandomForest,
		Model:        forest,
		Codec:        codec,
		FeatureNames: append([]string(nil), codec.FeatureNames...),
		Accuracy:     report.Accuracy,
		Report:       report,
		TrainedAt:    time.Now().UTC(),
		TrainSamples: len(trainX),
		TestSamples:  len(testX),
	}
	duration := time.Since(start)
	logger.Info("model trained", zap.Float64("accuracy", report.Accuracy), zap.Duration("duration", duration))

	return &TrainResult{Artifact: artifact, Dataset: data, Duration: duration}, nil
}

func gather(data []LabeledRecord, idx []int) ([]CustomerRecord, []int) {
	records := make([]CustomerRecord, len(idx))
	labels := make([]int, len(idx))
	for i, j := range idx {
		records[i] = data[j].Record
		labels[i] = data[j].Churn
	}
	return records, labels
}

func vectors(fv []FeatureVector) [][]float64 {
	out := make([][]float64, len(fv))
	for i, v := range fv {
		out[i] = v
	}
	return out
}
