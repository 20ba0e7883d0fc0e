package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

// Metadata is the metadata.json exported alongside a model.
type Metadata struct {
	ModelName   string   `json:"modelName"`
	Labels      []string `json:"labels"`
	ImageSize   int      `json:"imageSize"`
	TMVersion   string   `json:"tmVersion"`
	PackageName string   `json:"packageName"`
}

// ParseMetadata decodes metadata.json and applies defaults.
func ParseMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Metadata{}, apperrors.Wrap(err, apperrors.CodeModelLoadFailed, "decode model metadata")
	}
	if m.ImageSize <= 0 {
		m.ImageSize = DefaultImageSize
	}
	if len(m.Labels) < 2 {
		return Metadata{}, apperrors.Newf(apperrors.CodeModelLoadFailed, "model metadata lists %d labels, need at least 2", len(m.Labels))
	}
	return m, nil
}

// FetchMetadata downloads and parses metadata.json. Transport failures and
// server errors are Unavailable so the caller may retry them.
func FetchMetadata(ctx context.Context, hc *http.Client, url string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, MetadataFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Metadata{}, apperrors.Wrap(err, apperrors.CodeModelLoadFailed, "build metadata request").WithMetadata("url", url)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Metadata{}, apperrors.Wrap(err, apperrors.CodeUnavailable, "fetch model metadata").WithMetadata("url", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return Metadata{}, apperrors.Newf(apperrors.CodeUnavailable, "fetch model metadata: %s", resp.Status).WithMetadata("url", url)
	case resp.StatusCode != http.StatusOK:
		return Metadata{}, apperrors.Newf(apperrors.CodeModelLoadFailed, "fetch model metadata: %s", resp.Status).WithMetadata("url", url)
	}

	m, err := ParseMetadata(resp.Body)
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", url, err)
	}
	return m, nil
}
