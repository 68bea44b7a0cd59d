package ml

import (
	"fmt"
)

// CodecState holds the fitted scaling and encoding parameters that turn a
// CustomerRecord into a FeatureVector. It is created by FitCodec and reused
// verbatim at inference.
type CodecState struct {
	FeatureNames []string                 `json:"feature_names"`
	Scalers      map[string]ScalerParams  `json:"scalers"`
	Encoders     map[string]*LabelEncoder `json:"encoders"`
}

// FitCodec fits scalers and label encoders on records and returns the
// encoded batch.
func FitCodec(records []CustomerRecord) (CodecState, []FeatureVector, error) {
	if len(records) == 0 {
		return CodecState{}, nil, ErrEmptyDataset
	}

	state := CodecState{
		FeatureNames: FeatureNames(),
		Scalers:      make(map[string]ScalerParams, len(numericFeatures)),
		Encoders:     make(map[string]*LabelEncoder, len(categoricalFeatures)),
	}

	column := make([]float64, len(records))
	for _, name := range numericFeatures {
		for i, r := range records {
			column[i], _ = r.numeric(name)
		}
		params, err := fitScaler(column)
		if err != nil {
			return CodecState{}, nil, fmt.Errorf("fit scaler %s: %w", name, err)
		}
		state.Scalers[name] = params
	}

	labels := make([]string, len(records))
	for _, name := range categoricalFeatures {
		for i, r := range records {
			labels[i], _ = r.categorical(name)
		}
		encoder, err := fitLabelEncoder(labels)
		if err != nil {
			return CodecState{}, nil, fmt.Errorf("fit encoder %s: %w", name, err)
		}
		state.Encoders[name] = encoder
	}

	vectors, err := state.EncodeBatch(records)
	if err != nil {
		return CodecState{}, nil, err
	}
	return state, vectors, nil
}

// Encode maps one record to its feature vector in FeatureNames order.
func (s CodecState) Encode(record CustomerRecord) (FeatureVector, error) {
	vector := make(FeatureVector, len(s.FeatureNames))
	for i, name := range s.FeatureNames {
		if isNumericFeature(name) {
			params, ok := s.Scalers[name]
			if !ok {
				return nil, fmt.Errorf("%w: no scaler for %s", ErrCodecMismatch, name)
			}
			value, _ := record.numeric(name)
			vector[i] = params.Transform(value)
			continue
		}

		value, ok := record.categorical(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown feature %s", ErrCodecMismatch, name)
		}
		encoder, ok := s.Encoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: no encoder for %s", ErrCodecMismatch, name)
		}
		code, ok := encoder.Transform(value)
		if !ok {
			return nil, &UnknownCategoryError{Feature: name, Value: value}
		}
		vector[i] = float64(code)
	}
	return vector, nil
}

func (s CodecState) EncodeBatch(records []CustomerRecord) ([]FeatureVector, error) {
	vectors := make([]FeatureVector, len(records))
	for i, r := range records {
		v, err := s.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Validate checks that every feature name resolves to fitted parameters.
func (s CodecState) Validate() error {
	if len(s.FeatureNames) == 0 {
		return fmt.Errorf("%w: no feature names", ErrCodecMismatch)
	}
	for _, name := range s.FeatureNames {
		if isNumericFeature(name) {
			if _, ok := s.Scalers[name]; !ok {
				return fmt.Errorf("%w: no scaler for %s", ErrCodecMismatch, name)
			}
			continue
		}
		if _, ok := (CustomerRecord{}).categorical(name); !ok {
			return fmt.Errorf("%w: unknown feature %s", ErrCodecMismatch, name)
		}
		if err := s.Encoders[name].validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCodecMismatch, name, err)
		}
	}
	return nil
}
