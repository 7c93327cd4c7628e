package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/tasks"
	"github.com/fluxorio/todochaos/pkg/web"
)

// FallbackBody is the 503 payload while the to-do boundary is Faulted
type FallbackBody struct {
	Error     string `json:"error"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Detail    string `json:"detail"`
	RetryInMS int64  `json:"retryInMs"`
}

// NoticeBody is the payload for failures the user is told about
type NoticeBody struct {
	Error  string `json:"error"`
	Notice string `json:"notice"`
}

// mapErrors translates domain errors into HTTP errors before the outer
// middleware sees them
func mapErrors(next web.FastRequestHandler) web.FastRequestHandler {
	return func(ctx *web.FastRequestContext) error {
		err := next(ctx)
		if err == nil {
			return nil
		}
		return toHTTPError(err)
	}
}

func toHTTPError(err error) error {
	var (
		he       *web.HTTPError
		fallback *boundary.FallbackError
		notice   *tasks.NoticeError
	)
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &fallback):
		fb := fallback.Fallback
		return &web.HTTPError{
			Status:  fasthttp.StatusServiceUnavailable,
			Message: fb.Title,
			Err:     err,
			Body: FallbackBody{
				Error:     "component_crashed",
				Title:     fb.Title,
				Message:   fb.Message,
				Detail:    fb.Detail,
				RetryInMS: fb.RetryIn.Milliseconds(),
			},
		}
	case errors.Is(err, chaos.ErrServiceUnavailable):
		return &web.HTTPError{Status: fasthttp.StatusServiceUnavailable, Message: chaos.ServiceErrorText, Err: err}
	case errors.Is(err, tasks.ErrEmptyText):
		return &web.HTTPError{Status: fasthttp.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, tasks.ErrUnauthenticated):
		status := fasthttp.StatusUnauthorized
		if errors.As(err, &notice) {
			return &web.HTTPError{Status: status, Message: notice.Notice, Err: err,
				Body: NoticeBody{Error: "unauthenticated", Notice: notice.Notice}}
		}
		return &web.HTTPError{Status: status, Message: err.Error(), Err: err}
	case errors.Is(err, tasks.ErrDeleteDisabled):
		return &web.HTTPError{Status: fasthttp.StatusForbidden, Message: err.Error(), Err: err}
	case errors.As(err, &notice):
		return &web.HTTPError{Status: fasthttp.StatusBadGateway, Message: notice.Notice, Err: err,
			Body: NoticeBody{Error: "backend_failed", Notice: notice.Notice}}
	case errors.Is(err, authn.ErrInvalidCredentials), errors.Is(err, authn.ErrInvalidToken):
		return &web.HTTPError{Status: fasthttp.StatusUnauthorized, Message: err.Error(), Err: err}
	case errors.Is(err, authn.ErrRateLimited):
		return &web.HTTPError{Status: fasthttp.StatusTooManyRequests, Message: err.Error(), Err: err}
	}
	return err
}
