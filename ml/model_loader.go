package ml

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	ModelTypeRandomForest = "RandomForestClassifier"

	artifactMagic   = "CHURNMDL"
	artifactVersion = 1
)

var ErrCorruptArtifact = errors.New("corrupt model artifact")

// ModelArtifact bundles everything produced by one training run. It is never
// mutated after creation; retraining produces a new artifact.
type ModelArtifact struct {
	ModelType    string
	Model        *RandomForest
	Codec        CodecState
	FeatureNames []string
	Accuracy     float64
	Report       ClassificationReport
	TrainedAt    time.Time
	TrainSamples int
	TestSamples  int
}

func (a *ModelArtifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrCorruptArtifact)
	}
	if a.ModelType != ModelTypeRandomForest {
		return fmt.Errorf("%w: unsupported model type %q", ErrCorruptArtifact, a.ModelType)
	}
	if a.Model == nil || len(a.Model.Trees) == 0 {
		return fmt.Errorf("%w: model has no trees", ErrCorruptArtifact)
	}
	if err := a.Codec.Validate(); err != nil {
		return err
	}
	if len(a.FeatureNames) != len(a.Codec.FeatureNames) {
		return fmt.Errorf("%w: artifact has %d feature names, codec has %d", ErrCodecMismatch, len(a.FeatureNames), len(a.Codec.FeatureNames))
	}
	for i, name := range a.FeatureNames {
		if a.Codec.FeatureNames[i] != name {
			return fmt.Errorf("%w: feature %d is %s in artifact, %s in codec", ErrCodecMismatch, i, name, a.Codec.FeatureNames[i])
		}
	}
	if a.Model.NFeatures != len(a.FeatureNames) {
		return fmt.Errorf("%w: model expects %d features, artifact lists %d", ErrCodecMismatch, a.Model.NFeatures, len(a.FeatureNames))
	}
	return nil
}

// SaveArtifact writes the artifact as one blob. The file is written next to
// path and renamed over it, so readers never see a partial file.
func SaveArtifact(path string, artifact *ModelArtifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := EncodeArtifact(tmp, artifact); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func LoadArtifact(path string) (*ModelArtifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return DecodeArtifact(bufio.NewReader(file))
}

func EncodeArtifact(w io.Writer, artifact *ModelArtifact) error {
	var header bytes.Buffer
	header.WriteString(artifactMagic)
	header.WriteByte(artifactVersion)
	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(artifact); err != nil {
		zw.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	return zw.Close()
}

func DecodeArtifact(r io.Reader) (*ModelArtifact, error) {
	header := make([]byte, len(artifactMagic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if string(header[:len(artifactMagic)]) != artifactMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptArtifact)
	}
	if header[len(artifactMagic)] != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptArtifact, header[len(artifactMagic)])
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	defer zr.Close()

	var artifact ModelArtifact
	if err := gob.NewDecoder(zr).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}
