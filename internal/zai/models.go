package zai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Model is one entry of the upstream model catalog.
type Model struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Info ModelInfo `json:"info"`
}

// ModelInfo carries catalog metadata. IsActive defaults to true when the
// upstream omits it.
type ModelInfo struct {
	IsActive  *bool `json:"is_active,omitempty"`
	CreatedAt int64 `json:"created_at,omitempty"`
}

// Active reports whether the catalog entry is serveable.
func (m Model) Active() bool {
	return m.Info.IsActive == nil || *m.Info.IsActive
}

// ListModels fetches the upstream model catalog.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve upstream token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	c.headers.apply(req.Header, c.baseURL, token.AccessToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var payload struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Kind: KindBadResponse, Msg: fmt.Sprintf("decode model catalog: %v", err)}
	}
	return payload.Data, nil
}
