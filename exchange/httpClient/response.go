package httpClient

import (
	"encoding/json"
	"fmt"
)

// Response is what the venue answered. Non-2xx statuses are returned here, not as errors.
type Response struct {
	StatusCode int
	Body       string
}

// Envelope is the v5 response wrapper carrying business errors.
type Envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// APIError describes a rejected request: HTTP status outside 2xx or retCode != 0.
type APIError struct {
	StatusCode int
	RetCode    int
	RetMsg     string
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode < 200 || e.StatusCode > 299 {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("retCode %d: %s", e.RetCode, e.RetMsg)
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

func (r *Response) Envelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Err classifies the response for logging. It returns nil for an accepted request.
func (r *Response) Err() error {
	if !r.OK() {
		return &APIError{StatusCode: r.StatusCode, Body: r.Body}
	}
	env, err := r.Envelope()
	if err != nil {
		return err
	}
	if env.RetCode != 0 {
		return &APIError{StatusCode: r.StatusCode, RetCode: env.RetCode, RetMsg: env.RetMsg, Body: r.Body}
	}
	return nil
}
