package executor

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

// HTTPDispatcher is the production Dispatcher: a JSON-over-HTTP client
// against the external action executor spec.md §1 places outside this
// core's boundary. Grounded on the same ai/client.go OpenAIClient idiom as
// analyzer.HTTPClient (bounded-timeout http.Client, marshal/POST/decode),
// applied here to the single Dispatch endpoint spec.md §6 describes:
// "Input = Action record; output = {success, result, error_message,
// duration_ms, rollback_performed?}. Must be idempotent by action id."
type HTTPDispatcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDispatcher builds an HTTPDispatcher targeting baseURL.
func NewHTTPDispatcher(baseURL string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDispatcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type wireResult struct {
	Success           bool                   `json:"success"`
	Result            map[string]interface{} `json:"result"`
	ErrorMessage      string                 `json:"error_message"`
	DurationMs        int64                  `json:"duration_ms"`
	RollbackPerformed bool                   `json:"rollback_performed"`
}

// Dispatch POSTs action (keyed by its id, for the callee's idempotency
// check) and maps the wire result onto DispatchResult.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, action domain.Action) (DispatchResult, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return DispatchResult{}, domain.Classify("executor.dispatch", domain.KindInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/actions/"+action.ID+"/dispatch", bytes.NewReader(body))
	if err != nil {
		return DispatchResult{}, domain.Classify("executor.dispatch", domain.KindDependency, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.ID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return DispatchResult{}, domain.Classify("executor.dispatch", domain.KindDependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return DispatchResult{}, domain.Classify("executor.dispatch", domain.KindDependency,
			fmt.Errorf("action executor returned %d: %s", resp.StatusCode, respBody))
	}

	var wr wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return DispatchResult{}, domain.Classify("executor.dispatch", domain.KindDependency, err)
	}
	return DispatchResult{Success: wr.Success, Output: wr.Result, ErrorMessage: wr.ErrorMessage}, nil
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
