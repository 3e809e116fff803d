package ml

import (
	"fmt"
	"strings"
)

// AccuracyScore is the fraction of predictions equal to the truth.
func AccuracyScore(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassMetrics are the per-class scores of a report. Undefined ratios are 0.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes predictions per class with macro and
// support-weighted averages.
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

// NewClassificationReport scores yPred against yTrue. labels names every
// class code; classes with no support and no predictions are omitted.
func NewClassificationReport(yTrue, yPred []int, labels []string) *ClassificationReport {
	k := len(labels)
	tp := make([]int, k)
	predicted := make([]int, k)
	support := make([]int, k)
	for i := range yTrue {
		support[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
		}
	}

	r := &ClassificationReport{
		Accuracy:    AccuracyScore(yTrue, yPred),
		Total:       len(yTrue),
		MacroAvg:    ClassMetrics{Label: "macro avg"},
		WeightedAvg: ClassMetrics{Label: "weighted avg"},
	}
	for c := 0; c < k; c++ {
		if support[c] == 0 && predicted[c] == 0 {
			continue
		}
		m := ClassMetrics{
			Label:     labels[c],
			Precision: ratio(tp[c], predicted[c]),
			Recall:    ratio(tp[c], support[c]),
			Support:   support[c],
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}

	if n := len(r.Classes); n > 0 {
		for _, m := range r.Classes {
			r.MacroAvg.Precision += m.Precision / float64(n)
			r.MacroAvg.Recall += m.Recall / float64(n)
			r.MacroAvg.F1 += m.F1 / float64(n)
			if r.Total > 0 {
				w := float64(m.Support) / float64(r.Total)
				r.WeightedAvg.Precision += m.Precision * w
				r.WeightedAvg.Recall += m.Recall * w
				r.WeightedAvg.F1 += m.F1 * w
			}
		}
	}
	r.MacroAvg.Support = r.Total
	r.WeightedAvg.Support = r.Total
	return r
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// String renders the report as an aligned text table.
func (r *ClassificationReport) String() string {
	width := len("weighted avg")
	for _, m := range r.Classes {
		width = max(width, len(m.Label))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		writeMetricsRow(&b, width, m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	writeMetricsRow(&b, width, r.MacroAvg)
	writeMetricsRow(&b, width, r.WeightedAvg)
	return b.String()
}

func writeMetricsRow(b *strings.Builder, width int, m ClassMetrics) {
	fmt.Fprintf(b, "%*s %9.2f %9.2f %9.2f %9d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
}
