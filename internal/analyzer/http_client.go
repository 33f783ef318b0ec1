package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// HTTPClient is the production Analyzer: a thin JSON-over-HTTP client
// against the external root-cause analysis service spec.md §1 places
// outside this core's boundary. Grounded on the teacher's
// ai/client.go OpenAIClient (construct with a bounded-timeout http.Client,
// marshal request, POST, decode response), narrowed from a chat-completion
// call to this domain's single Analyze endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient targeting baseURL (e.g.
// "http://analyzer.internal"). A zero timeout defaults to 10s, since an
// analyzer call sits in the synchronous analyze stage and must not hang the
// issue indefinitely.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	IssueID     string           `json:"issue_id"`
	MerchantKey string           `json:"merchant_key"`
	Signals     []domain.Signal  `json:"signals"`
	Patterns    []domain.Pattern `json:"patterns"`
}

func (c *HTTPClient) Analyze(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(wireRequest{
		IssueID:     req.IssueID,
		MerchantKey: req.MerchantKey,
		Signals:     req.Signals,
		Patterns:    req.Patterns,
	})
	if err != nil {
		return Response{}, domain.Classify("analyzer.analyze", domain.KindInput, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return Response{}, domain.Classify("analyzer.analyze", domain.KindDependency, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, domain.Classify("analyzer.analyze", domain.KindDependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Response{}, domain.Classify("analyzer.analyze", domain.KindDependency,
			fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, respBody))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, domain.Classify("analyzer.analyze", domain.KindDependency, err)
	}
	return out, nil
}

var _ Analyzer = (*HTTPClient)(nil)
