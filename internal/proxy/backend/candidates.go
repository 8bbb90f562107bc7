package backend

import (
	"context"
	"errors"
	"net/http"
)

// DoFirst tries req against each candidate path in order and returns the
// first 2xx response together with the path that produced it. When no
// candidate succeeds, the first answer that is not 404 or 405 is returned,
// since that is the endpoint that exists; failing that, the last outcome.
func (c *Client) DoFirst(ctx context.Context, req Request, candidates []string) (*Response, string, error) {
	if len(candidates) == 0 {
		candidates = []string{req.Path}
	}

	var (
		best     *Response
		bestPath string
		lastResp *Response
		lastPath string
		lastErr  error
	)

	for _, candidate := range candidates {
		attempt := req
		attempt.Path = candidate
		if req.Name == "" || req.Name == req.Path {
			attempt.Name = candidate
		}

		resp, err := c.Do(ctx, attempt)
		if err != nil {
			lastResp, lastPath, lastErr = nil, candidate, err
			if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.OK() {
			return resp, candidate, nil
		}
		if best == nil && resp.Status != http.StatusNotFound && resp.Status != http.StatusMethodNotAllowed {
			best, bestPath = resp, candidate
		}
		lastResp, lastPath, lastErr = resp, candidate, nil
	}

	switch {
	case best != nil:
		return best, bestPath, nil
	case lastResp != nil:
		return lastResp, lastPath, nil
	default:
		return nil, lastPath, lastErr
	}
}
