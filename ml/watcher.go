package ml

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reloads the predictor when its artifact file is replaced on
// disk, e.g. by cmd/train_model. The parent directory is watched because
// SaveArtifact renames a temp file over the target.
type ArtifactWatcher struct {
	predictor *Predictor
	target    string
	watcher   *fsnotify.Watcher
	logger    *zap.Logger

	// OnReload, when set, runs after each successful reload.
	OnReload func(artifact *ModelArtifact, generation uint64)
}

func NewArtifactWatcher(predictor *Predictor, logger *zap.Logger) (*ArtifactWatcher, error) {
	if predictor.Path() == "" {
		return nil, errors.New("predictor has no artifact path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := filepath.Abs(predictor.Path())
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &ArtifactWatcher{
		predictor: predictor,
		target:    target,
		watcher:   watcher,
		logger:    logger,
	}, nil
}

// Run blocks until ctx is cancelled or the watcher is closed.
func (w *ArtifactWatcher) Run(ctx context.Context) {
	w.logger.Info("watching model artifact", zap.String("path", w.target))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if err := w.predictor.Load(); err != nil {
				w.logger.Warn("artifact reload failed, keeping current model", zap.Error(err))
				continue
			}
			artifact, generation := w.predictor.Serving()
			w.logger.Info("artifact reloaded", zap.Uint64("generation", generation))
			if w.OnReload != nil && artifact != nil {
				w.OnReload(artifact, generation)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}

func (w *ArtifactWatcher) Close() error {
	return w.watcher.Close()
}
