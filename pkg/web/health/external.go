package health

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPCheck probes an HTTP dependency with GET and expects a 2xx
func HTTPCheck(url string, timeout time.Duration, headers ...map[string]string) Checker {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return func(ctx context.Context) error {
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < timeout {
				timeout = left
			}
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)
		for _, h := range headers {
			for key, value := range h {
				req.Header.Set(key, value)
			}
		}

		if err := fasthttp.DoTimeout(req, resp, timeout); err != nil {
			return &Error{Message: fmt.Sprintf("HTTP request failed: %v", err)}
		}

		if code := resp.StatusCode(); code < 200 || code >= 300 {
			return &Error{Message: fmt.Sprintf("HTTP status %d", code)}
		}

		return nil
	}
}
