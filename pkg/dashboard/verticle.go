package dashboard

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

// Verticle runs the dashboard view and its HTTP server
type Verticle struct {
	*core.BaseVerticle
	addr   string
	view   *View
	server *Server
}

// NewVerticle creates the dashboard verticle listening on addr
func NewVerticle(addr string, store *logstore.Store, gatherer prometheus.Gatherer) *Verticle {
	v := &Verticle{
		BaseVerticle: core.NewBaseVerticle("dashboard"),
		addr:         addr,
		view:         NewView(store),
	}
	v.server = NewServer(v.view, gatherer, v.Logger())
	return v
}

// Start subscribes the view and starts serving
func (v *Verticle) Start(ctx core.FluxorContext) error {
	v.view.Start()
	if err := v.server.Listen(v.addr); err != nil {
		v.view.Stop()
		return err
	}

	logger := v.Logger()
	logger.Info("dashboard listening on ", v.server.Addr())
	go func() {
		if err := v.server.Serve(); err != nil {
			logger.Error("dashboard server failed: ", err)
		}
	}()
	return nil
}

// Stop shuts the server down and unsubscribes the view
func (v *Verticle) Stop(ctx core.FluxorContext) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := v.server.Shutdown(shutdownCtx)
	v.view.Stop()
	return err
}

// View returns the view
func (v *Verticle) View() *View {
	return v.view
}

// Addr returns the bound address once started
func (v *Verticle) Addr() string {
	return v.server.Addr()
}
