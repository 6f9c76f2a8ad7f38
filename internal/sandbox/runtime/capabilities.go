package runtime

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/playground/internal/sandbox/dom"
)

//go:embed shims/*.js
var shims embed.FS

// installer provides one capability inside a context. Capabilities replace
// the CDN scripts a browser document would load.
type installer func(c *Context) error

var installers = map[string]installer{
	"babel":     installBabel,
	"p5":        installP5,
	"react":     installReact,
	"react-dom": installReactDOM,
	"hono":      installHono,
}

func installBabel(c *Context) error {
	c.transpile = true
	return nil
}

func installP5(c *Context) error {
	return c.runShim("p5.js")
}

func installReact(c *Context) error {
	if err := c.runShim("react.js"); err != nil {
		return err
	}
	c.modules["react"] = c.vm.Get("React")
	return nil
}

// installReactDOM also tracks the root created on the output element, so a
// re-run can unmount it before user code mounts again
func installReactDOM(c *Context) error {
	if err := c.runShim("react-dom.js"); err != nil {
		return err
	}
	reactDOM := c.vm.Get("ReactDOM").ToObject(c.vm)
	createRoot, ok := goja.AssertFunction(reactDOM.Get("createRoot"))
	if !ok {
		return errors.New("react-dom: createRoot missing")
	}
	if err := reactDOM.Set("createRoot", func(call goja.FunctionCall) goja.Value {
		root, err := createRoot(call.This, call.Arguments...)
		if err != nil {
			c.rethrow(err)
		}
		if c.unwrap(call.Argument(0)) == c.root {
			c.reactRoot = root
		}
		return root
	}); err != nil {
		return err
	}
	c.modules["react-dom"] = reactDOM
	c.modules["react-dom/client"] = reactDOM
	return nil
}

func installHono(c *Context) error {
	if err := c.runShim("fetch.js"); err != nil {
		return err
	}
	ctor := c.vm.ToValue(c.newHono)
	module := c.vm.NewObject()
	if err := module.Set("Hono", ctor); err != nil {
		return err
	}
	c.modules["hono"] = module
	global := c.vm.GlobalObject()
	if err := global.Set("Hono", ctor); err != nil {
		return err
	}
	return global.Set("serve", c.serve)
}

func (c *Context) runShim(name string) error {
	src, err := shims.ReadFile("shims/" + name)
	if err != nil {
		return err
	}
	return c.guard.run(func() error {
		_, err := c.vm.RunScript(name, string(src))
		return err
	})
}

// installHelpers evaluates the sandbox shim, which installs the event
// constructors and returns the helpers Go calls back into
func (c *Context) installHelpers() error {
	src, err := shims.ReadFile("shims/sandbox.js")
	if err != nil {
		return err
	}
	return c.guard.run(func() error {
		v, err := c.vm.RunScript("sandbox.js", string(src))
		if err != nil {
			return err
		}
		factory, ok := goja.AssertFunction(v)
		if !ok {
			return errors.New("sandbox.js did not evaluate to a function")
		}
		out, err := factory(goja.Undefined(), c.vm.GlobalObject())
		if err != nil {
			return err
		}
		obj := out.ToObject(c.vm)
		for _, name := range obj.Keys() {
			fn, ok := goja.AssertFunction(obj.Get(name))
			if !ok {
				return fmt.Errorf("sandbox helper %s is not a function", name)
			}
			c.helpers[name] = fn
		}
		return nil
	})
}

// installRequire exposes the modules the capabilities registered. Unknown
// names throw the way a bundler-less page would.
func (c *Context) installRequire() goja.Value {
	return c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if m, ok := c.modules[name]; ok {
			return m
		}
		c.throw("Module not found: '%s'. Only %s are available.", name, c.moduleList())
		return nil
	})
}

func (c *Context) moduleList() string {
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	switch len(names) {
	case 0:
		return "no modules"
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

// trackRejections records promises rejected without a handler. They are
// reported once the task settles, unless a handler was attached by then.
func (c *Context) trackRejections() {
	c.vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			if !c.rejected[p] {
				c.rejected[p] = true
				c.rejections = append(c.rejections, p)
			}
		case goja.PromiseRejectionHandle:
			delete(c.rejected, p)
		}
	})
}

func (c *Context) reportRejections() {
	pending := c.rejections
	c.rejections = nil
	for _, p := range pending {
		if !c.rejected[p] {
			continue
		}
		delete(c.rejected, p)
		c.emitError("Unhandled Promise Rejection: " + c.messageOf(p.Result()))
	}
}

// load builds the document, installs the sandbox globals and then the
// capabilities named by the manifest, in document order
func (c *Context) load() error {
	c.doc = dom.NewDocument()
	c.doc.Root.SetAttribute("data-mode", c.spec.Mode.String())
	c.doc.Root.SetAttribute("data-theme", string(c.manifest.Theme))
	c.root = c.doc.Import(c.manifest.Root)
	if c.root == nil {
		return ErrInvalidDocument
	}
	c.doc.Body.AppendChild(c.root)
	c.version = c.doc.Version()
	c.snapshot = dom.Snapshot(c.root)

	steps := []func() error{c.installTimers, c.installHelpers, c.installConsole, c.installDOM}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	c.trackRejections()

	for _, name := range c.manifest.Capabilities {
		if err := installers[name](c); err != nil {
			return fmt.Errorf("capability %s: %w", name, c.scriptError(err))
		}
	}
	if c.spec.NeedsTranspile() && !c.transpile {
		return errors.New("Babel is not available")
	}

	run, ok := runners[c.spec.Mode]
	if !ok {
		return fmt.Errorf("no runner for %s", c.spec.Mode)
	}
	c.runner = run
	return nil
}
