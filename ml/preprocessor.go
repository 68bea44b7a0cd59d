package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ScalerParams standardizes one numeric feature.
type ScalerParams struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Scale is the divisor applied after centring. Zero-variance features keep
// scale 1 so they are only centred.
func (p ScalerParams) Scale() float64 {
	if p.Std == 0 || math.IsNaN(p.Std) {
		return 1
	}
	return p.Std
}

func (p ScalerParams) Transform(value float64) float64 {
	return (value - p.Mean) / p.Scale()
}

// fitScaler computes mean and population standard deviation.
func fitScaler(values []float64) (ScalerParams, error) {
	if len(values) == 0 {
		return ScalerParams{}, ErrEmptyDataset
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return ScalerParams{Mean: mean, Std: math.Sqrt(sq / float64(len(values)))}, nil
}

// LabelEncoder maps category strings to integer codes. Classes are kept sorted
// and a code is the index of its class.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

func fitLabelEncoder(values []string) (*LabelEncoder, error) {
	if len(values) == 0 {
		return nil, ErrEmptyDataset
	}
	seen := make(map[string]struct{}, 8)
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return &LabelEncoder{Classes: classes}, nil
}

// Transform returns the code of value or false when value was not seen at fit time.
func (e *LabelEncoder) Transform(value string) (int, bool) {
	i := sort.SearchStrings(e.Classes, value)
	if i < len(e.Classes) && e.Classes[i] == value {
		return i, true
	}
	return 0, false
}

func (e *LabelEncoder) InverseTransform(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", fmt.Errorf("code %d out of range [0,%d)", code, len(e.Classes))
	}
	return e.Classes[code], nil
}

func (e *LabelEncoder) validate() error {
	if e == nil || len(e.Classes) == 0 {
		return errors.New("label encoder has no classes")
	}
	if !sort.StringsAreSorted(e.Classes) {
		return errors.New("label encoder classes are not sorted")
	}
	return nil
}
