package runtime

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/dom"
	"github.com/GriffinCanCode/playground/internal/sandbox/mockserver"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/transpile"
)

// runner evaluates one EXECUTE for a mode. It runs inside the guard.
type runner func(c *Context, code string) error

var runners = map[mode.Mode]runner{
	mode.DOM:        runScript,
	mode.TypeScript: runScript,
	mode.P5:         runSketch,
	mode.React:      runComponent,
	mode.ReactTS:    runComponent,
	mode.Express:    runExpress,
	mode.ExpressTS:  runExpress,
	mode.Hono:       runHono,
	mode.HeadlessJS: runHeadless,
	mode.HeadlessTS: runHeadless,
}

// execute handles EXECUTE. Failures become RUNTIME_ERROR; in server modes
// they also fault the server.
func (c *Context) execute(code string) {
	c.runs++
	c.stopTimers()
	delete(c.listeners, documentTarget)
	delete(c.listeners, windowTarget)
	c.prune()

	err := c.guard.run(func() error { return c.runner(c, code) })
	if err == nil {
		return
	}
	se := c.scriptError(err)
	if c.spec.IsServer() {
		c.server.Fault(se)
	}
	c.log.Debug("Execution failed", zap.Int("run", c.runs), zap.String("error", se.Error()))
	c.emitError(se.Error())
}

func (c *Context) emitError(text string) {
	c.emit(protocol.NewText(protocol.RuntimeError, text))
}

// source transpiles code when the mode has presets
func (c *Context) source(code string) (string, error) {
	if !c.spec.NeedsTranspile() {
		return code, nil
	}
	return transpile.Transform(code, c.spec.Presets)
}

// runScript calls the code as a function of the output root. A top-level
// declaration of root in the code shadows the parameter.
func runScript(c *Context, code string) error {
	c.root.ReplaceChildren()
	src, err := c.source(code)
	if err != nil {
		return err
	}
	fn, err := c.compile("root", src)
	if err != nil {
		return err
	}
	_, err = fn(goja.Undefined(), c.wrap(c.root))
	return err
}

// runSketch removes every running sketch before evaluating in global scope,
// so a re-run leaves exactly one instance and one canvas
func runSketch(c *Context, code string) error {
	global := c.vm.GlobalObject()
	if p5 := global.Get("p5"); p5 != nil {
		if removeAll, ok := goja.AssertFunction(p5.ToObject(c.vm).Get("removeAll")); ok {
			if _, err := removeAll(p5); err != nil {
				return err
			}
		}
	}
	if c.canvasObserver != nil {
		c.canvasObserver.Disconnect()
	}
	c.root.ReplaceChildren()
	for _, name := range []string{"setup", "draw", "preload"} {
		if err := global.Set(name, goja.Null()); err != nil {
			return err
		}
	}

	// p5 attaches canvases to body; the output root is what the user sees
	c.canvasObserver = c.doc.Observe(c.doc.Body, false, func(recs []dom.Record) {
		for _, r := range recs {
			for _, n := range r.Added {
				if n.TagName == "canvas" && n.Parent == c.doc.Body {
					c.root.AppendChild(n)
				}
			}
		}
	})

	if err := c.evalGlobal(code); err != nil {
		return err
	}
	_, setup := goja.AssertFunction(global.Get("setup"))
	_, draw := goja.AssertFunction(global.Get("draw"))
	if !setup && !draw {
		return nil
	}
	_, err := c.vm.New(global.Get("p5"))
	return err
}

// runComponent unmounts the tracked root before user code mounts again. If
// the code did not mount anything, a default or App export is rendered.
func runComponent(c *Context, code string) error {
	if c.reactRoot != nil {
		root := c.reactRoot.ToObject(c.vm)
		c.reactRoot = nil
		if unmount, ok := goja.AssertFunction(root.Get("unmount")); ok {
			if _, err := unmount(root); err != nil {
				return err
			}
		}
	}
	c.root.ReplaceChildren()

	src, err := c.source(code)
	if err != nil {
		return err
	}
	fn, err := c.compile("require, module, exports", src)
	if err != nil {
		return err
	}
	module, exports := c.vm.NewObject(), c.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if _, err := fn(goja.Undefined(), c.installRequire(), module, exports); err != nil {
		return err
	}
	if c.reactRoot != nil {
		return nil
	}
	return c.mount(module.Get("exports"))
}

func (c *Context) mount(exports goja.Value) error {
	var app goja.Value
	if obj, ok := exports.(*goja.Object); ok {
		for _, name := range []string{"default", "App"} {
			if v := obj.Get(name); v != nil {
				if _, ok := goja.AssertFunction(v); ok {
					app = v
					break
				}
			}
		}
	}
	if app == nil {
		v := c.vm.Get("App")
		if _, ok := goja.AssertFunction(v); !ok {
			return nil
		}
		app = v
	}

	reactDOM := c.vm.Get("ReactDOM").ToObject(c.vm)
	createRoot, _ := goja.AssertFunction(reactDOM.Get("createRoot"))
	root, err := createRoot(reactDOM, c.wrap(c.root))
	if err != nil {
		return err
	}
	react := c.vm.Get("React").ToObject(c.vm)
	createElement, _ := goja.AssertFunction(react.Get("createElement"))
	element, err := createElement(react, app)
	if err != nil {
		return err
	}
	render, _ := goja.AssertFunction(root.ToObject(c.vm).Get("render"))
	_, err = render(root, element)
	return err
}

// runHeadless evaluates with document and window shadowed to null; the
// output root only shows the mode's notice
func runHeadless(c *Context, code string) error {
	if err := c.root.SetInnerHTML(c.spec.Placeholder); err != nil {
		return err
	}
	src, err := c.source(code)
	if err != nil {
		return err
	}
	fn, err := c.compile("document, window", src)
	if err != nil {
		return err
	}
	_, err = fn(goja.Undefined(), goja.Null(), goja.Null())
	return err
}

// simulate handles SIMULATE_REQUEST. Requests before listen are dropped
// without a response.
func (c *Context) simulate(req protocol.RequestPayload) {
	if !c.spec.IsServer() {
		c.log.Debug("Request ignored outside server mode")
		return
	}
	if err := c.server.Begin(); err != nil {
		c.log.Debug("Request ignored", zap.String("state", c.server.State().String()), zap.Error(err))
		return
	}
	ex := mockserver.NewExchange(req, func(resp protocol.ResponsePayload) {
		c.server.Complete(resp)
		c.log.Debug("Request complete", zap.Int("status", resp.Status))
		c.emit(protocol.NewRequestComplete(resp))
	})

	switch {
	case c.express != nil:
		c.express.handle(ex)
	case c.hono != nil:
		c.handleHono(ex)
	default:
		ex.NotFound()
	}
}
