package classifier

import (
	"context"
	"fmt"
	"image"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

// Prediction is one class probability, in model order.
type Prediction struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
}

// Model is a loaded classifier.
type Model interface {
	TotalClasses() int
	Labels() []string
	Predict(ctx context.Context, frame image.Image) ([]Prediction, error)
	// Unload releases the model on the server.
	Unload(ctx context.Context) error
}

// Loader loads models from a model/metadata location pair.
type Loader interface {
	Load(ctx context.Context, modelURL, metadataURL string) (Model, error)
}

// Split returns the target (index 0) and complement (index 1) probabilities.
func Split(preds []Prediction) (target, complement float64, err error) {
	if len(preds) < 2 {
		return 0, 0, apperrors.Newf(apperrors.CodePredictionFailed, "expected at least 2 predictions, got %d", len(preds))
	}
	return preds[0].Probability, preds[1].Probability, nil
}

// FormatProbability renders p as a percentage with one decimal.
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
