package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
)

// HTTPEngine talks to a transcoding engine over its job API:
// POST /jobs submits, GET /jobs/{ref} reports state.
type HTTPEngine struct {
	baseURL string
	http    *http.Client
}

func NewHTTPEngine(baseURL string) *HTTPEngine {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &HTTPEngine{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *HTTPEngine) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return "", faults.Transientf("submit job: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", faults.Capacityf("engine throttled submission (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", faults.Transientf("engine submission failed (%d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", faults.Terminalf("engine rejected submission (%d)", resp.StatusCode)
	}

	var out struct {
		JobRef string `json:"external_job_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", faults.Transientf("decode submit response: %v", err)
	}
	if out.JobRef == "" {
		return "", faults.Transientf("engine returned empty job ref")
	}
	return out.JobRef, nil
}

func (e *HTTPEngine) Poll(ctx context.Context, jobRef string) (*CompletionSignal, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/jobs/"+jobRef, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return nil, faults.Transientf("poll job %s: %v", jobRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, faults.Transientf("poll job %s: status %d", jobRef, resp.StatusCode)
	}

	var sig CompletionSignal
	if err := json.NewDecoder(resp.Body).Decode(&sig); err != nil {
		return nil, faults.Transientf("decode poll response: %v", err)
	}
	if sig.Status != StatusComplete && sig.Status != StatusError {
		// Still running.
		return nil, nil
	}
	sig.JobRef = jobRef
	return &sig, nil
}
