package runtime

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// consoleKinds maps console methods to the event they emit
var consoleKinds = map[string]protocol.Kind{
	"log":   protocol.ConsoleLog,
	"info":  protocol.ConsoleLog,
	"warn":  protocol.ConsoleWarn,
	"error": protocol.ConsoleError,
}

// installConsole overrides console once per context. Every call is recorded
// in the context logger at debug level and forwarded as an event.
func (c *Context) installConsole() error {
	console := c.vm.NewObject()
	for name, kind := range consoleKinds {
		if err := console.Set(name, c.consoleFunc(name, kind)); err != nil {
			return err
		}
	}
	if err := console.Set("table", func(call goja.FunctionCall) goja.Value {
		text := c.stringify(call.Argument(0))
		c.log.Debug("console.table", zap.String("text", text))
		c.emit(protocol.NewText(protocol.ConsoleLog, text))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := console.Set("debug", func(call goja.FunctionCall) goja.Value {
		c.log.Debug("console.debug", zap.String("text", c.format(call.Arguments)))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return c.vm.Set("console", console)
}

func (c *Context) consoleFunc(name string, kind protocol.Kind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		text := c.format(call.Arguments)
		c.log.Debug("console."+name, zap.String("text", text))
		c.emit(protocol.NewText(kind, text))
		return goja.Undefined()
	}
}

// format joins arguments the way the interceptor renders them
func (c *Context) format(args []goja.Value) string {
	v, err := c.helpers["format"](goja.Undefined(), args...)
	if err != nil {
		c.rethrow(err)
	}
	return v.String()
}

func (c *Context) stringify(v goja.Value) string {
	out, err := c.helpers["stringify"](goja.Undefined(), v)
	if err != nil {
		c.rethrow(err)
	}
	return out.String()
}
