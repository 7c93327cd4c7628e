package core

// Verticle is a deployable unit of work. Start must not block: long running
// servers are started on their own goroutine and torn down in Stop.
type Verticle interface {
	Start(ctx FluxorContext) error
	Stop(ctx FluxorContext) error
}

// BaseVerticle carries the name and logger shared by concrete verticles
type BaseVerticle struct {
	name   string
	logger Logger
}

// NewBaseVerticle creates a BaseVerticle with a component-scoped logger
func NewBaseVerticle(name string) *BaseVerticle {
	return &BaseVerticle{
		name:   name,
		logger: NewDefaultLogger().WithFields(map[string]interface{}{"verticle": name}),
	}
}

// Name returns the verticle name
func (b *BaseVerticle) Name() string {
	return b.name
}

// Logger returns the verticle logger
func (b *BaseVerticle) Logger() Logger {
	return b.logger
}

// SetLogger replaces the verticle logger
func (b *BaseVerticle) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.logger = logger.WithFields(map[string]interface{}{"verticle": b.name})
}
