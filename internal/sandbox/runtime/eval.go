package runtime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/transpile"
)

// userScript names compiled user code in stack traces
const userScript = "main.js"

// ErrExecTimeout interrupts evaluations that exceed Config.ExecTimeout
var ErrExecTimeout = errors.New("execution timed out")

// guard arms an interrupt for the outermost entry into the VM. Nested
// entries (JS calling Go calling JS) share the outer budget.
type guard struct {
	vm      *goja.Runtime
	timeout time.Duration
	depth   int

	mu      sync.Mutex
	token   uint64
	active  bool
	aborted error
	timer   *time.Timer
}

func newGuard(vm *goja.Runtime, timeout time.Duration) *guard {
	return &guard{vm: vm, timeout: timeout}
}

func (g *guard) run(fn func() error) error {
	g.enter()
	defer g.exit()
	return fn()
}

func (g *guard) enter() {
	g.depth++
	if g.depth > 1 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.token++
	token := g.token
	g.active = true
	g.timer = time.AfterFunc(g.timeout, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.active && g.token == token {
			g.vm.Interrupt(fmt.Errorf("%w after %s", ErrExecTimeout, g.timeout))
		}
	})
}

func (g *guard) exit() {
	g.depth--
	if g.depth > 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.aborted == nil {
		g.vm.ClearInterrupt()
	}
}

// abort interrupts whatever is running and keeps the VM interrupted
func (g *guard) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.aborted = err
	g.vm.Interrupt(err)
}

// ScriptError is a user-code failure rendered the way RUNTIME_ERROR reports
// it: the message plus the line when the engine knows it.
type ScriptError struct {
	Message string
	Line    int
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

var (
	framePattern  = regexp.MustCompile(`at (?:[^\n]*? \()?([^()\s]+):(\d+):(\d+)`)
	syntaxPattern = regexp.MustCompile(`Line (\d+):(\d+)`)
)

// shim sources are skipped when looking for the failing user line
var shimSources = map[string]bool{
	"sandbox.js":   true,
	"fetch.js":     true,
	"p5.js":        true,
	"react.js":     true,
	"react-dom.js": true,
	"inspect.js":   true,
}

func lineOf(trace string) int {
	for _, m := range framePattern.FindAllStringSubmatch(trace, -1) {
		if shimSources[m[1]] {
			continue
		}
		if line, err := strconv.Atoi(m[2]); err == nil && line > 0 {
			return line
		}
	}
	if m := syntaxPattern.FindStringSubmatch(trace); m != nil {
		line, _ := strconv.Atoi(m[1])
		return line
	}
	return 0
}

// scriptError converts anything an evaluation can fail with
func (c *Context) scriptError(err error) *ScriptError {
	var se *ScriptError
	if errors.As(err, &se) {
		return se
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Message: c.messageOf(ex.Value()), Line: lineOf(ex.String())}
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if cause, ok := ie.Value().(error); ok {
			return &ScriptError{Message: "Execution interrupted: " + cause.Error()}
		}
		return &ScriptError{Message: ie.Error()}
	}

	var te *transpile.Error
	if errors.As(err, &te) {
		return &ScriptError{Message: "Transpile error: " + te.Error()}
	}
	return &ScriptError{Message: err.Error()}
}

// messageOf mirrors error.message, falling back to the console rendering
func (c *Context) messageOf(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	if fn, ok := c.helpers["stringify"]; ok {
		if s, err := fn(goja.Undefined(), v); err == nil {
			return s.String()
		}
	}
	return v.String()
}

// reportError emits RUNTIME_ERROR for a failure outside evaluation (timers,
// event listeners, observers)
func (c *Context) reportError(err error) {
	if err == nil || c.closed() {
		return
	}
	se := c.scriptError(err)
	c.log.Debug("Uncaught error in sandbox", zap.String("error", se.Error()))
	c.emit(protocol.NewText(protocol.RuntimeError, se.Error()))
}

// call invokes fn under the guard
func (c *Context) call(fn goja.Value, this goja.Value, args ...goja.Value) (goja.Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", fn)
	}
	var out goja.Value
	err := c.guard.run(func() error {
		var err error
		out, err = callable(this, args...)
		return err
	})
	return out, err
}

// compile wraps code as a function of params, keeping line numbers. The
// inner block lets user declarations shadow the injected parameters.
func (c *Context) compile(params, code string) (goja.Callable, error) {
	v, err := c.vm.RunScript(userScript, "(function("+params+") {{"+code+"\n}})")
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New("compiled code is not a function")
	}
	return fn, nil
}

// evalGlobal evaluates code the way an indirect eval does: declarations
// become globals, lexical bindings stay local to the evaluation.
func (c *Context) evalGlobal(code string) error {
	eval, ok := goja.AssertFunction(c.vm.Get("eval"))
	if !ok {
		return errors.New("eval is unavailable")
	}
	_, err := eval(goja.Undefined(), c.vm.ToValue(code))
	return err
}

// throw raises a JS Error with message from inside a Go callback
func (c *Context) throw(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if obj, err := c.vm.New(c.vm.Get("Error"), c.vm.ToValue(msg)); err == nil {
		panic(obj)
	}
	panic(c.vm.NewTypeError(msg))
}

// rethrow propagates a failed nested call back into JS
func (c *Context) rethrow(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		panic(ie)
	}
	panic(c.vm.NewGoError(err))
}
