package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/saamerm/particle/pkg/particle"
)

const maxBodySize = 1 << 20

// do sends a request and decodes a JSON response into out. A form body is
// sent url-encoded; a non-empty token is sent as a bearer credential.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, token string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("cloud request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", particle.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", particle.ErrNetwork, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(resp, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &particle.ParseError{Field: "body", Err: err}
	}

	return nil
}

func upstreamError(resp *http.Response, raw []byte) error {
	var general particle.GeneralResponse
	msg := ""
	if json.Unmarshal(raw, &general) == nil {
		msg = general.Message()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &particle.UpstreamError{StatusCode: resp.StatusCode, Message: msg}
}
