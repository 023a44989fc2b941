package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/photovault/internal/config"
)

// Encoder produces CLIP image embeddings.
type Encoder interface {
	EncodeImage(ctx context.Context, modelName, filename string, r io.Reader) ([]float32, error)
}

// MLClient talks to the machine learning service over HTTP.
type MLClient struct {
	client *resty.Client
}

// NewMLClient creates a new machine learning client
func NewMLClient(cfg config.MachineLearningConfig) *MLClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout)

	return &MLClient{client: client}
}

// predict request/response structures
type clipEntries struct {
	Clip struct {
		Visual struct {
			ModelName string `json:"modelName"`
		} `json:"visual"`
	} `json:"clip"`
}

type predictResponse struct {
	// Clip is either a JSON array or a string holding one.
	Clip   json.RawMessage `json:"clip"`
	Detail string          `json:"detail,omitempty"`
}

// EncodeImage sends the image to /predict and returns its embedding.
func (c *MLClient) EncodeImage(ctx context.Context, modelName, filename string, r io.Reader) ([]float32, error) {
	var entries clipEntries
	entries.Clip.Visual.ModelName = modelName
	rawEntries, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{"entries": string(rawEntries)}).
		SetFileReader("image", filename, r).
		SetResult(&resp).
		SetError(&resp).
		Post("/predict")
	if err != nil {
		return nil, fmt.Errorf("failed to call machine learning service: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("machine learning error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("machine learning error: status %d", httpResp.StatusCode())
	}

	embedding, err := decodeEmbedding(resp.Clip)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embedding, nil
}

func decodeEmbedding(raw json.RawMessage) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var embedding []float32
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return embedding, nil
}
