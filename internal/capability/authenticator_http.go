package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"moneychanger/internal/core"
)

// HTTPAuthenticator delegates genuineness and denomination inference to
// an external model-serving process over HTTP. No Go machine-learning
// inference library appears anywhere in this project's dependency set,
// so the real implementation treats the model server as a plain HTTP
// peer — the same shape the kiosk already uses for its API layer —
// rather than linking an inference runtime in-process.
type HTTPAuthenticator struct {
	baseURL    string
	confidence float64
	client     *http.Client
}

func NewHTTPAuthenticator(baseURL string, confidenceThreshold float64) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		baseURL:    baseURL,
		confidence: confidenceThreshold,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

type inferenceRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

type inferenceResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (a *HTTPAuthenticator) infer(ctx context.Context, path string, frame core.Frame) (inferenceResponse, error) {
	body, err := json.Marshal(inferenceRequest{Width: frame.Width, Height: frame.Height, Pix: frame.Pix})
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("marshal inference request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return inferenceResponse{}, fmt.Errorf("inference server returned %s", resp.Status)
	}
	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return inferenceResponse{}, fmt.Errorf("decode inference response: %w", err)
	}
	return out, nil
}

func (a *HTTPAuthenticator) Authenticate(ctx context.Context, uvFrame core.Frame) (core.AuthResult, error) {
	resp, err := a.infer(ctx, "/v1/authenticate", uvFrame)
	if err != nil {
		return core.AuthResult{}, err
	}
	return core.AuthResult{
		IsGenuine:  resp.Confidence >= a.confidence && resp.Label == "genuine",
		Confidence: resp.Confidence,
		RawLabel:   resp.Label,
	}, nil
}

func (a *HTTPAuthenticator) IdentifyDenomination(ctx context.Context, visibleFrame core.Frame) (core.DenomResult, error) {
	resp, err := a.infer(ctx, "/v1/identify-denomination", visibleFrame)
	if err != nil {
		return core.DenomResult{}, err
	}
	denom := core.BillDenom(resp.Label)
	known := false
	for _, d := range core.AllBillDenoms() {
		if d == denom {
			known = true
			break
		}
	}
	if !known || resp.Confidence < a.confidence {
		return core.DenomResult{Confidence: resp.Confidence, Identified: false, RawLabel: resp.Label}, nil
	}
	return core.DenomResult{
		Confidence:   resp.Confidence,
		Denomination: denom,
		Identified:   true,
		RawLabel:     resp.Label,
	}, nil
}

var _ core.Authenticator = (*HTTPAuthenticator)(nil)
