package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/runtime"
)

// Isolate is the controller's view of an isolated context: it accepts
// posted messages and reports its lifecycle, nothing more
type Isolate interface {
	ID() string
	PostMessage(msg protocol.Message) error
	Loaded() <-chan struct{}
	Done() <-chan struct{}
	Close() error
}

// Request describes the context a Factory should create
type Request struct {
	ContextID string
	Document  Document
	Broadcast channel.Publisher
}

// Factory creates isolated contexts
type Factory interface {
	Create(ctx context.Context, req Request) (Isolate, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, req Request) (Isolate, error)

// Create calls f
func (f FactoryFunc) Create(ctx context.Context, req Request) (Isolate, error) {
	return f(ctx, req)
}

// RuntimeFactory creates goja-backed contexts
type RuntimeFactory struct {
	Config runtime.Config
	Logger *zap.Logger
}

// Create starts a runtime context loading req.Document
func (f RuntimeFactory) Create(ctx context.Context, req Request) (Isolate, error) {
	return runtime.New(ctx, runtime.Options{
		ID:        req.ContextID,
		Source:    req.Document.HTML,
		Broadcast: req.Broadcast,
		Config:    f.Config,
		Logger:    f.Logger,
	})
}
