package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skypro1111/voicegate/internal/spectrogram"
)

var (
	// ErrLabelsFile is returned when a model folder does not hold exactly one labels file
	ErrLabelsFile = errors.New("labels file")
	// ErrNoScores is returned for a prediction without scores or label
	ErrNoScores = errors.New("prediction has no scores")
)

// Classifier maps a spectrogram tensor to a command label
type Classifier interface {
	Classify(ctx context.Context, tensor *spectrogram.Tensor) (*Prediction, error)
}

// Prediction is the outcome of one classification
type Prediction struct {
	Label  string    `json:"label" msgpack:"label"`
	Index  int       `json:"index" msgpack:"index"`
	Scores []float32 `json:"scores,omitempty" msgpack:"scores"`
}

// FindLabelsFile returns the single *.txt file in modelDir
func FindLabelsFile(modelDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(modelDir, "*.txt"))
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", modelDir, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no *.txt file in %s", ErrLabelsFile, modelDir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %d *.txt files in %s, expected one", ErrLabelsFile, len(matches), modelDir)
	}
}

// LoadLabels reads one label per line. Line order is the model's class order;
// trailing empty lines are ignored.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels %s: %w", path, err)
	}

	labels := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for len(labels) > 0 && strings.TrimSpace(labels[len(labels)-1]) == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrLabelsFile, path)
	}

	return labels, nil
}

// LoadModelLabels finds and reads the labels file of a model folder
func LoadModelLabels(modelDir string) ([]string, error) {
	path, err := FindLabelsFile(modelDir)
	if err != nil {
		return nil, err
	}
	return LoadLabels(path)
}

// Argmax returns the index of the largest score, the first on ties, or -1 when empty.
func Argmax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}

// Resolve fills in Index and Label from the scores when the model did not
// name the label itself.
func (p *Prediction) Resolve(labels []string) error {
	if p.Label != "" {
		return nil
	}
	if len(p.Scores) == 0 {
		return ErrNoScores
	}

	p.Index = Argmax(p.Scores)
	if p.Index >= len(labels) {
		return fmt.Errorf("%w: class %d has no label (%d labels)", ErrLabelsFile, p.Index, len(labels))
	}
	p.Label = labels[p.Index]

	return nil
}
