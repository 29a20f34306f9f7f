package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/pathfinder/types"
)

const maxBody = 1 << 20

// oauthError is the RFC 6749 error body.
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// send executes req and returns the status and body. Transport failures are
// mapped to *types.Error.
func send(c *http.Client, req *http.Request, source string) (int, []byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.Canceled) {
				return 0, nil, ctxErr
			}
			return 0, nil, types.NewTimeoutError(source, err)
		}
		return 0, nil, types.NewUpstreamError(source, http.StatusBadGateway, err.Error()).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, types.NewUpstreamError(source, http.StatusBadGateway, err.Error()).WithRetryable(true)
	}
	return resp.StatusCode, body, nil
}

// doJSON sends req and decodes a 2xx body into out.
func doJSON(c *http.Client, req *http.Request, source string, out any) error {
	req.Header.Set("Accept", "application/json")
	status, body, err := send(c, req, source)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return types.FromHTTPStatus(source, status, strings.TrimSpace(string(body)))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewError(types.ErrMalformedOutput, fmt.Sprintf("decode %s response: %v", source, err)).
			WithSource(source).
			WithCause(err)
	}
	return nil
}
