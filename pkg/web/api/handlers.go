package api

import (
	"context"

	"github.com/valyala/fasthttp"

	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/tasks"
	"github.com/fluxorio/todochaos/pkg/web"
	"github.com/fluxorio/todochaos/pkg/web/middleware/auth"
)

func badRequest(err error) error {
	return &web.HTTPError{Status: fasthttp.StatusBadRequest, Message: "invalid request body", Err: err}
}

func (a *API) login(ctx *web.FastRequestContext) error {
	var creds authn.Credentials
	if err := ctx.BindJSON(&creds); err != nil {
		return badRequest(err)
	}
	session, err := a.deps.Auth.Login(ctx.Context(), creds)
	if err != nil {
		return err
	}
	return ctx.JSON(fasthttp.StatusOK, session)
}

func (a *API) logout(ctx *web.FastRequestContext) error {
	if _, err := a.deps.Auth.Logout(auth.TokenFrom(ctx)); err != nil {
		return err
	}
	return ctx.NoContent()
}

func (a *API) me(ctx *web.FastRequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, auth.UserFrom(ctx))
}

func (a *API) listTodos(ctx *web.FastRequestContext) error {
	var listing tasks.Listing
	err := a.deps.Boundary.Do(ctx.Context(), func(c context.Context) error {
		var err error
		listing, err = a.deps.Tasks.List(c, auth.UserFrom(ctx))
		return err
	})
	if err != nil {
		return err
	}
	return ctx.JSON(fasthttp.StatusOK, listing)
}

type createTodoRequest struct {
	Text string `json:"text"`
}

func (a *API) createTodo(ctx *web.FastRequestContext) error {
	var req createTodoRequest
	if err := ctx.BindJSON(&req); err != nil {
		return badRequest(err)
	}

	var task tasks.Task
	err := a.deps.Boundary.Do(ctx.Context(), func(c context.Context) error {
		var err error
		task, err = a.deps.Tasks.Create(c, auth.UserFrom(ctx), req.Text)
		return err
	})
	if err != nil {
		return err
	}
	return ctx.JSON(fasthttp.StatusCreated, tasks.View(task, a.deps.Tasks.Features()))
}

func (a *API) deleteTodo(ctx *web.FastRequestContext) error {
	id := ctx.Param("id")
	err := a.deps.Boundary.Do(ctx.Context(), func(c context.Context) error {
		return a.deps.Tasks.Delete(c, auth.UserFrom(ctx), id)
	})
	if err != nil {
		return err
	}
	return ctx.NoContent()
}

// ChaosStatus is the chaos toggle as shown to operators
type ChaosStatus struct {
	Enabled        bool   `json:"enabled"`
	Rate           string `json:"rate"`
	LatencyDelayMS int64  `json:"latencyDelayMs"`
}

func (a *API) chaosStatus() ChaosStatus {
	return ChaosStatus{
		Enabled:        a.deps.Injector.Enabled(),
		Rate:           chaos.RateLabel,
		LatencyDelayMS: a.deps.Injector.LatencyDelay().Milliseconds(),
	}
}

func (a *API) getChaos(ctx *web.FastRequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, a.chaosStatus())
}

type chaosUpdate struct {
	Enabled *bool `json:"enabled"`
}

func (a *API) putChaos(ctx *web.FastRequestContext) error {
	var req chaosUpdate
	if err := ctx.BindJSON(&req); err != nil {
		return badRequest(err)
	}
	if req.Enabled == nil {
		return web.NewHTTPError(fasthttp.StatusBadRequest, "enabled is required")
	}
	a.deps.Injector.SetEnabled(*req.Enabled)
	a.logger.WithFields(map[string]interface{}{"enabled": *req.Enabled}).Info("chaos toggled")
	return ctx.JSON(fasthttp.StatusOK, a.chaosStatus())
}

func (a *API) getFeatures(ctx *web.FastRequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, a.deps.Tasks.Features())
}

func (a *API) putFeatures(ctx *web.FastRequestContext) error {
	var f tasks.Features
	if err := ctx.BindJSON(&f); err != nil {
		return badRequest(err)
	}
	a.deps.Tasks.SetFeatures(f)
	return ctx.JSON(fasthttp.StatusOK, a.deps.Tasks.Features())
}

// BoundaryStatus reports the to-do boundary state
type BoundaryStatus struct {
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Fallback *FallbackBody `json:"fallback,omitempty"`
}

func (a *API) getBoundary(ctx *web.FastRequestContext) error {
	b := a.deps.Boundary
	status := BoundaryStatus{Name: b.Name(), State: string(b.State())}
	if err := b.LastError(); err != nil {
		fb := b.Fallback()
		status.Fallback = &FallbackBody{
			Error:     err.Error(),
			Title:     fb.Title,
			Message:   fb.Message,
			Detail:    fb.Detail,
			RetryInMS: fb.RetryIn.Milliseconds(),
		}
	}
	return ctx.JSON(fasthttp.StatusOK, status)
}
