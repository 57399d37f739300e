package biometric

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrClassifierUnavailable means the optional anti-spoof stage could not give
// an answer. Callers pass the attempt through; it never blocks voting.
var ErrClassifierUnavailable = errors.New("spoof classifier unavailable")

// SpoofResult is a verdict from a secondary anti-spoof classifier.
type SpoofResult struct {
	Real    bool
	Message string
}

// SpoofClassifier is the pluggable second liveness stage.
type SpoofClassifier interface {
	Classify(ctx context.Context, image []byte) (SpoofResult, error)
}

// DisabledClassifier is used when no anti-spoof service is configured.
type DisabledClassifier struct{}

func (DisabledClassifier) Classify(context.Context, []byte) (SpoofResult, error) {
	return SpoofResult{}, fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
}

// RemoteClassifier asks an HTTP anti-spoof service for a verdict. One request
// per image, no retries; the client timeout bounds the call.
type RemoteClassifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewRemoteClassifier(url, apiKey string, timeout time.Duration) *RemoteClassifier {
	return &RemoteClassifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type spoofRequest struct {
	Image string `json:"image"`
}

type spoofResponse struct {
	Success       bool    `json:"success"`
	IsLive        bool    `json:"is_live"`
	LivenessScore float64 `json:"liveness_score"`
	FailureReason *string `json:"failure_reason"`
	Error         *string `json:"error"`
}

func (c *RemoteClassifier) Classify(ctx context.Context, image []byte) (SpoofResult, error) {
	body, err := json.Marshal(spoofRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return SpoofResult{}, fmt.Errorf("%w: marshal request: %v", ErrClassifierUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return SpoofResult{}, fmt.Errorf("%w: build request: %v", ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return SpoofResult{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return SpoofResult{}, fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var out spoofResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return SpoofResult{}, fmt.Errorf("%w: decode response: %v", ErrClassifierUnavailable, err)
	}
	if !out.Success {
		reason := "service reported failure"
		if out.Error != nil {
			reason = *out.Error
		}
		return SpoofResult{}, fmt.Errorf("%w: %s", ErrClassifierUnavailable, reason)
	}

	if !out.IsLive {
		msg := fmt.Sprintf("presentation attack suspected (score=%.2f)", out.LivenessScore)
		if out.FailureReason != nil && *out.FailureReason != "" {
			msg = *out.FailureReason
		}
		return SpoofResult{Real: false, Message: msg}, nil
	}
	return SpoofResult{Real: true, Message: fmt.Sprintf("anti-spoof check passed (score=%.2f)", out.LivenessScore)}, nil
}
