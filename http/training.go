package http

import (
	"context"
	"net/http"

	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"go.uber.org/zap"
)

// handleRetrain 在请求内同步重新训练模型；同一时刻只允许一个训练任务
func (h *handlers) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if !h.retraining.CompareAndSwap(false, true) {
		h.writeJSON(w, http.StatusConflict, errorBody("Retraining already in progress"))
		return
	}
	defer h.retraining.Store(false)

	artifact, err := h.retrain(r.Context())
	if err != nil {
		h.deps.Logger.Error("retrain failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorBody("Retraining failed: "+err.Error()))
		return
	}

	positive := artifact.Report.Positive()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "Model retrained successfully",
		"new_accuracy":  artifact.Accuracy,
		"precision":     positive.Precision,
		"recall":        positive.Recall,
		"f1_score":      positive.F1,
		"train_samples": artifact.TrainSamples,
		"generation":    h.deps.Predictor.Generation(),
	})
}

// retrain 训练、落盘、切换模型，并记录模型表现
func (h *handlers) retrain(ctx context.Context) (*ml.ModelArtifact, error) {
	cfg := h.deps.Training.TrainConfig()
	result, err := h.train(cfg, h.deps.Logger)
	if err != nil {
		return nil, err
	}
	artifact := result.Artifact

	if h.deps.ModelPath != "" {
		if err := ml.SaveArtifact(h.deps.ModelPath, artifact); err != nil {
			return nil, err
		}
	}
	if err := h.deps.Predictor.Swap(artifact); err != nil {
		return nil, err
	}
	generation := h.deps.Predictor.Generation()
	h.deps.Monitor.SetModelState(true, generation)

	if h.deps.Store != nil {
		positive := artifact.Report.Positive()
		err := h.deps.Store.StoreModelPerformance(context.WithoutCancel(ctx), db.ModelPerformance{
			ModelVersion:    modelVersion(generation),
			Accuracy:        artifact.Accuracy,
			Precision:       positive.Precision,
			Recall:          positive.Recall,
			F1:              positive.F1,
			TrainingSamples: artifact.TrainSamples,
		})
		if err != nil {
			h.deps.Logger.Warn("failed to store model performance", zap.Error(err))
		}
	}
	if h.deps.Hub != nil {
		err := h.deps.Hub.PublishModel(monitoring.ModelMessage{
			Generation: generation,
			Accuracy:   artifact.Accuracy,
			Source:     "retrain",
		})
		if err != nil {
			h.deps.Logger.Warn("failed to publish model event", zap.Error(err))
		}
	}
	return artifact, nil
}
