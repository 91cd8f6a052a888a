// Package vision labels images with the Google Cloud Vision API.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

const (
	labelDetection = "LABEL_DETECTION"
	maxLabels      = 1
)

// Client implements scrape.LabelingService.
type Client struct {
	svc    *visionapi.Service
	logger *zap.Logger
}

// NewClient dials the Vision API. Authentication comes from opts or Application Default Credentials.
func NewClient(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return New(svc, logger)
}

// New wraps an existing Vision service.
func New(svc *visionapi.Service, logger *zap.Logger) (*Client, error) {
	if svc == nil {
		return nil, fmt.Errorf("vision service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{svc: svc, logger: logger}, nil
}

// LabelImage sends one LABEL_DETECTION request capped at a single result.
// A response carrying neither annotations nor an error yields ok=false.
func (c *Client) LabelImage(ctx context.Context, data []byte) (string, bool, error) {
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image: &visionapi.Image{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []*visionapi.Feature{{
				Type:       labelDetection,
				MaxResults: maxLabels,
			}},
		}},
	}
	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("%w: annotate: %w", scrape.ErrLabel, err)
	}
	label, ok, err := topLabel(resp)
	if err != nil {
		return "", false, err
	}
	if !ok {
		c.logger.Debug("vision returned no label annotations", zap.Int("bytes", len(data)))
	}
	return label, ok, nil
}

func topLabel(resp *visionapi.BatchAnnotateImagesResponse) (string, bool, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", false, nil
	}
	first := resp.Responses[0]
	if first.Error != nil {
		return "", false, fmt.Errorf("%w: %s", scrape.ErrLabel, first.Error.Message)
	}
	if len(first.LabelAnnotations) == 0 || first.LabelAnnotations[0] == nil {
		return "", false, nil
	}
	label := first.LabelAnnotations[0].Description
	if label == "" {
		return "", false, nil
	}
	return label, true, nil
}
