package web

import (
	"github.com/fluxorio/todochaos/pkg/core"
)

// FastHTTPVerticle runs a FastHTTPServer as part of the verticle lifecycle
type FastHTTPVerticle struct {
	*core.BaseVerticle
	server *FastHTTPServer
	config *FastHTTPServerConfig
	setup  func(*FastRouter)
	done   chan error
}

// NewFastHTTPVerticle creates a verticle; setup registers routes once the
// server exists
func NewFastHTTPVerticle(name string, config *FastHTTPServerConfig, setup func(*FastRouter)) *FastHTTPVerticle {
	if config == nil {
		config = DefaultFastHTTPServerConfig(":8080")
	}
	return &FastHTTPVerticle{
		BaseVerticle: core.NewBaseVerticle(name),
		config:       config,
		setup:        setup,
	}
}

// Start binds the listener synchronously and serves on its own goroutine
func (v *FastHTTPVerticle) Start(ctx core.FluxorContext) error {
	v.server = NewFastHTTPServer(ctx.Vertx(), v.config)
	v.server.SetLogger(v.Logger())
	if v.setup != nil {
		v.setup(v.server.Router())
	}

	ln, err := v.server.Listen()
	if err != nil {
		_ = v.server.Stop()
		return err
	}

	v.done = make(chan error, 1)
	go func() {
		v.done <- v.server.Serve(ln)
	}()
	v.Logger().Info("http verticle started on ", ln.Addr().String())
	return nil
}

// Stop shuts the server down and waits for Serve to return
func (v *FastHTTPVerticle) Stop(ctx core.FluxorContext) error {
	if v.server == nil {
		return nil
	}
	err := v.server.Stop()
	if v.done != nil {
		if serveErr := <-v.done; serveErr != nil && err == nil {
			err = serveErr
		}
	}
	v.Logger().Info("http verticle stopped")
	return err
}

// Server returns the underlying FastHTTPServer
func (v *FastHTTPVerticle) Server() *FastHTTPServer {
	return v.server
}

// Addr returns the bound address once started
func (v *FastHTTPVerticle) Addr() string {
	if v.server == nil {
		return v.config.Addr
	}
	return v.server.Addr()
}
