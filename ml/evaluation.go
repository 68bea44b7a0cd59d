package ml

import "errors"

type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

type ClassificationReport struct {
	Accuracy        float64        `json:"accuracy"`
	Classes         []ClassMetrics `json:"classes"`
	ConfusionMatrix [][]int        `json:"confusion_matrix"`
}

// Positive returns the metrics of the churn class, or a zero value.
func (r ClassificationReport) Positive() ClassMetrics {
	for _, c := range r.Classes {
		if c.Label == 1 {
			return c
		}
	}
	return ClassMetrics{Label: 1}
}

// Evaluate scores model on a held-out set. ConfusionMatrix[actual][predicted].
func Evaluate(model Classifier, features [][]float64, labels []int) (ClassificationReport, error) {
	if len(features) == 0 {
		return ClassificationReport{}, ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return ClassificationReport{}, errors.New("features and labels size mismatch")
	}

	nClasses := numClasses(labels)
	predicted := make([]int, len(features))
	for i, feature := range features {
		label, _, err := model.Predict(feature)
		if err != nil {
			return ClassificationReport{}, err
		}
		predicted[i] = label
		if label+1 > nClasses {
			nClasses = label + 1
		}
	}

	matrix := make([][]int, nClasses)
	for i := range matrix {
		matrix[i] = make([]int, nClasses)
	}
	correct := 0
	for i, actual := range labels {
		matrix[actual][predicted[i]]++
		if actual == predicted[i] {
			correct++
		}
	}

	report := ClassificationReport{
		Accuracy:        float64(correct) / float64(len(labels)),
		ConfusionMatrix: matrix,
	}
	for c := 0; c < nClasses; c++ {
		var truePositive, predictedPositive, actualPositive int
		for a := 0; a < nClasses; a++ {
			predictedPositive += matrix[a][c]
			actualPositive += matrix[c][a]
		}
		truePositive = matrix[c][c]

		m := ClassMetrics{Label: c, Support: actualPositive}
		if predictedPositive > 0 {
			m.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			m.Recall = float64(truePositive) / float64(actualPositive)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)
	}
	return report, nil
}
