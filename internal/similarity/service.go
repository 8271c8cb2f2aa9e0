package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ServiceOracle asks a similarity sidecar (for example a word-vector model
// served over HTTP) for semantic scores. Lexical scores are computed locally.
type ServiceOracle struct {
	baseURL    string
	client     *http.Client
	maxElapsed time.Duration
}

// NewService returns a client for the sidecar at baseURL. A timeout of zero
// or less means DefaultTimeout.
func NewService(baseURL string, timeout time.Duration) *ServiceOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ServiceOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		maxElapsed: timeout,
	}
}

type serviceRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type serviceResponse struct {
	Similarity float64 `json:"similarity"`
}

type serviceError struct {
	Error string `json:"error"`
}

func (s *ServiceOracle) SemanticSimilarity(ctx context.Context, a, b string) (float64, error) {
	body, err := json.Marshal(serviceRequest{A: strings.ToLower(a), B: strings.ToLower(b)})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	var score float64
	op := func() error {
		v, err := s.post(ctx, body)
		if err != nil {
			return err
		}
		score = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return 0, err
	}
	return clamp(score), nil
}

func (s *ServiceOracle) LexicalRatio(a, b string) float64 {
	return LexicalRatio(a, b)
}

func (s *ServiceOracle) post(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/similarity", bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("similarity call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp serviceError
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		err := fmt.Errorf("similarity service %d: %s", resp.StatusCode, msg)
		// Client errors will not improve on retry.
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	var out serviceResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
	}
	return out.Similarity, nil
}
