// Package ml implements the small supervised-learning toolkit the trainer
// needs: label encoding, feature standardization, a CART decision tree, a
// bagged random forest, data splitting, randomized hyperparameter search and
// classification metrics. Feature matrices are gonum dense matrices.
package ml

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/ortho-predict/internal/domain"
)

// LabelEncoder maps categorical strings to integer codes 0..k-1 in sorted
// class order.
type LabelEncoder struct {
	Classes []string `json:"classes"`
	index   map[string]int
}

// NewLabelEncoder creates an encoder fitted on values.
func NewLabelEncoder(values []string) *LabelEncoder {
	le := &LabelEncoder{}
	le.Fit(values)
	return le
}

// Fit learns the sorted set of distinct values.
func (le *LabelEncoder) Fit(values []string) {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	le.Classes = classes
	le.reindex()
}

func (le *LabelEncoder) reindex() {
	le.index = make(map[string]int, len(le.Classes))
	for i, c := range le.Classes {
		le.index[c] = i
	}
}

// UnmarshalJSON restores the classes and rebuilds the lookup index.
func (le *LabelEncoder) UnmarshalJSON(data []byte) error {
	var raw struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	le.Classes = raw.Classes
	le.reindex()
	return nil
}

// Len returns the number of known classes.
func (le *LabelEncoder) Len() int {
	return len(le.Classes)
}

// Code returns the code of one value.
func (le *LabelEncoder) Code(value string) (int, error) {
	if le.index == nil {
		le.reindex()
	}
	code, ok := le.index[value]
	if !ok {
		return -1, fmt.Errorf("%w: %q", domain.ErrUnknownLabel, value)
	}
	return code, nil
}

// Transform encodes values.
func (le *LabelEncoder) Transform(values []string) ([]int, error) {
	codes := make([]int, len(values))
	for i, v := range values {
		code, err := le.Code(v)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// Label returns the class of one code.
func (le *LabelEncoder) Label(code int) (string, error) {
	if code < 0 || code >= len(le.Classes) {
		return "", fmt.Errorf("%w: code %d", domain.ErrUnknownLabel, code)
	}
	return le.Classes[code], nil
}

// InverseTransform decodes codes back to their classes.
func (le *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		label, err := le.Label(c)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}
