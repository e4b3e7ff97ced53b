package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// TextDetector extracts the full text of a single image.
type TextDetector interface {
	// DetectText runs text detection over raw image bytes and returns the
	// detected full-page text, or "" when the service finds none.
	DetectText(ctx context.Context, image []byte) (string, error)
}

// Client wraps the Cloud Vision API. It is constructed once at process start
// and injected wherever text detection is needed.
type Client struct {
	svc *vision.Service
}

// New creates a Vision client using the given service-account key file.
// An empty credentialsFile falls back to Application Default Credentials.
func New(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// DetectText sends one TEXT_DETECTION request. The Vision API returns text
// annotations ranked by extent; the first annotation's description is the
// full text of the page.
func (c *Client) DetectText(ctx context.Context, image []byte) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image: &vision.Image{
					Content: base64.StdEncoding.EncodeToString(image),
				},
				Features: []*vision.Feature{
					{Type: "TEXT_DETECTION"},
				},
			},
		},
	}

	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("vision annotate: empty response")
	}

	r := resp.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision annotate: %s", r.Error.Message)
	}
	if len(r.TextAnnotations) == 0 {
		return "", nil
	}
	return r.TextAnnotations[0].Description, nil
}

var _ TextDetector = (*Client)(nil)
