package testutil

import (
	"github.com/valyala/fasthttp"
)

// Request describes one in-process fasthttp call
type Request struct {
	Method  string
	URI     string
	Body    []byte
	Headers map[string]string
}

// Do runs h against req without a listener and returns a copy of the
// response
func Do(h fasthttp.RequestHandler, req Request) *fasthttp.Response {
	var r fasthttp.Request
	method := req.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	r.Header.SetMethod(method)
	r.SetRequestURI(req.URI)
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	if req.Body != nil {
		r.Header.SetContentType("application/json")
		r.SetBody(req.Body)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&r, nil, nil)
	h(&ctx)

	resp := &fasthttp.Response{}
	ctx.Response.CopyTo(resp)
	return resp
}
