package runtime

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/playground/internal/sandbox/mockserver"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

var expressMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
	http.MethodHead, http.MethodOptions,
}

// expressApp is the mock application returned by express(). Its router is
// rebuilt on every run because every run creates a new app.
type expressApp struct {
	c        *Context
	obj      *goja.Object
	router   *mockserver.Router[goja.Value]
	settings map[string]goja.Value
}

type step struct {
	fn     goja.Value
	params map[string]string
}

func runExpress(c *Context, code string) error {
	c.server.Reset()
	c.express = nil
	c.root.ReplaceChildren()
	if _, ok := c.modules["express"]; !ok {
		c.modules["express"] = c.newExpressModule()
	}

	src, err := c.source(code)
	if err != nil {
		return err
	}
	fn, err := c.compile("require, module, exports, express", src)
	if err != nil {
		return err
	}
	module, exports := c.vm.NewObject(), c.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	_, err = fn(goja.Undefined(), c.installRequire(), module, exports, c.modules["express"])
	return err
}

// newExpressModule builds the express factory with its bundled middleware
func (c *Context) newExpressModule() *goja.Object {
	factory := c.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return c.newExpressApp().obj
	}).ToObject(c.vm)

	passthrough := func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if next, ok := goja.AssertFunction(call.Argument(2)); ok {
				if _, err := next(goja.Undefined()); err != nil {
					c.rethrow(err)
				}
			}
			return goja.Undefined()
		})
	}
	for _, name := range []string{"json", "urlencoded", "static", "text", "raw"} {
		_ = factory.Set(name, passthrough)
	}
	return factory
}

func (c *Context) newExpressApp() *expressApp {
	a := &expressApp{
		c:        c,
		obj:      c.vm.NewObject(),
		router:   mockserver.NewRouter[goja.Value](),
		settings: make(map[string]goja.Value),
	}
	c.express = a

	for _, method := range expressMethods {
		_ = a.obj.Set(strings.ToLower(method), a.route(method))
	}
	_ = a.obj.Set("all", a.route(mockserver.MethodAll))
	// get with one argument reads a setting
	get := a.route(http.MethodGet)
	_ = a.obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 1 {
			if v, ok := a.settings[call.Argument(0).String()]; ok {
				return v
			}
			return goja.Undefined()
		}
		return get(call)
	})
	_ = a.obj.Set("use", a.use)
	_ = a.obj.Set("set", func(call goja.FunctionCall) goja.Value {
		a.settings[call.Argument(0).String()] = call.Argument(1)
		return a.obj
	})
	_ = a.obj.Set("listen", a.listen)
	_ = a.obj.Set("locals", c.vm.NewObject())
	return a
}

// handlers flattens handler arguments, arrays included
func (a *expressApp) handlers(args []goja.Value) []goja.Value {
	var out []goja.Value
	for _, v := range args {
		if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Array" {
			items := make([]goja.Value, obj.Get("length").ToInteger())
			for i := range items {
				items[i] = obj.Get(strconv.Itoa(i))
			}
			out = append(out, a.handlers(items)...)
			continue
		}
		if _, ok := goja.AssertFunction(v); !ok {
			a.c.throw("Route handler must be a function, got %s", v.String())
		}
		out = append(out, v)
	}
	return out
}

func (a *expressApp) route(method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		pattern := call.Argument(0).String()
		if err := a.router.Add(method, pattern, a.handlers(call.Arguments[1:])...); err != nil {
			a.c.throw("Invalid route %s: %s", pattern, err)
		}
		return a.obj
	}
}

func (a *expressApp) use(call goja.FunctionCall) goja.Value {
	pattern, args := "/", call.Arguments
	if len(args) > 0 {
		if s, ok := args[0].Export().(string); ok {
			pattern, args = s, args[1:]
		}
	}
	if err := a.router.Use(pattern, a.handlers(args)...); err != nil {
		a.c.throw("Invalid path %s: %s", pattern, err)
	}
	return a.obj
}

// listen is the readiness signal. The callback runs before SERVER_READY so
// a throwing callback faults the server instead.
func (a *expressApp) listen(call goja.FunctionCall) goja.Value {
	c := a.c
	port := 3000
	var callback goja.Value
	for _, arg := range call.Arguments {
		if _, ok := goja.AssertFunction(arg); ok {
			callback = arg
			break
		}
		if n, err := strconv.Atoi(arg.String()); err == nil {
			port = n
		}
	}
	c.express = a
	c.hono = nil

	ready := c.server.Listen()
	if callback != nil {
		if _, err := c.call(callback, a.obj); err != nil {
			c.rethrow(err)
		}
	}
	if ready {
		c.emit(protocol.NewServerReady())
	}

	server := c.vm.NewObject()
	_ = server.Set("port", port)
	_ = server.Set("close", func(call goja.FunctionCall) goja.Value {
		if cb, ok := goja.AssertFunction(call.Argument(0)); ok {
			if _, err := cb(goja.Undefined()); err != nil {
				c.rethrow(err)
			}
		}
		return goja.Undefined()
	})
	_ = server.Set("address", func(goja.FunctionCall) goja.Value {
		addr := c.vm.NewObject()
		_ = addr.Set("port", port)
		return addr
	})
	return server
}

// handle runs the matching middleware and routes in registration order.
// next(err) and thrown errors skip to the first four-argument handler; with
// none left the request fails with 500.
func (a *expressApp) handle(ex *mockserver.Exchange) {
	c := a.c
	var chain []step
	for _, m := range a.router.Match(ex.Method, ex.Path) {
		for _, h := range m.Route.Handlers {
			chain = append(chain, step{fn: h, params: m.Params})
		}
	}
	req := a.request(ex)
	res := a.response(ex)

	var next func(i int, failure goja.Value)
	next = func(i int, failure goja.Value) {
		if ex.Resolved() {
			return
		}
		failed := failure != nil && !goja.IsUndefined(failure) && !goja.IsNull(failure)
		for ; i < len(chain); i++ {
			if isErrorHandler(chain[i].fn) == failed {
				break
			}
		}
		if i >= len(chain) {
			if failed {
				ex.Fail(c.messageOf(failure))
			} else {
				ex.NotFound()
			}
			return
		}

		s := chain[i]
		_ = req.Set("params", c.object(s.params))
		nextFn := c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			next(i+1, call.Argument(0))
			return goja.Undefined()
		})
		args := []goja.Value{req, res, nextFn}
		if failed {
			args = append([]goja.Value{failure}, args...)
		}
		out, err := c.call(s.fn, goja.Undefined(), args...)
		if err != nil {
			next(i+1, c.errorValue(err))
			return
		}
		c.onRejected(out, func(reason goja.Value) { next(i+1, reason) })
	}
	next(0, nil)
}

func isErrorHandler(fn goja.Value) bool {
	obj, ok := fn.(*goja.Object)
	return ok && obj.Get("length").ToInteger() == 4
}

// errorValue recovers the thrown JS value behind err
func (c *Context) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	return c.vm.ToValue(c.scriptError(err).Message)
}

// onRejected attaches fn as the rejection handler when v is a promise
func (c *Context) onRejected(v goja.Value, fn func(reason goja.Value)) {
	if v == nil {
		return
	}
	if _, ok := v.Export().(*goja.Promise); !ok {
		return
	}
	then, ok := goja.AssertFunction(v.ToObject(c.vm).Get("then"))
	if !ok {
		return
	}
	handler := c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fn(call.Argument(0))
		return goja.Undefined()
	})
	if _, err := then(v, goja.Undefined(), handler); err != nil {
		c.reportError(err)
	}
}

func (c *Context) object(m map[string]string) *goja.Object {
	obj := c.vm.NewObject()
	for k, v := range m {
		_ = obj.Set(k, v)
	}
	return obj
}

func (a *expressApp) request(ex *mockserver.Exchange) *goja.Object {
	c := a.c
	target := ex.Path
	if len(ex.Query) > 0 {
		target += "?" + encodeQuery(ex.Query)
	}
	req := c.vm.NewObject()
	fields := map[string]any{
		"method":      ex.Method,
		"path":        ex.Path,
		"url":         target,
		"originalUrl": target,
		"baseUrl":     "",
		"params":      c.vm.NewObject(),
		"query":       c.object(ex.Query),
		"headers":     c.vm.NewObject(),
		"body":        c.vm.NewObject(),
		"ip":          "127.0.0.1",
		"protocol":    "http",
		"hostname":    "localhost",
		"app":         a.obj,
	}
	for k, v := range fields {
		_ = req.Set(k, v)
	}
	header := func(call goja.FunctionCall) goja.Value {
		return req.Get("headers").ToObject(c.vm).Get(strings.ToLower(call.Argument(0).String()))
	}
	_ = req.Set("get", header)
	_ = req.Set("header", header)
	return req
}

func (a *expressApp) response(ex *mockserver.Exchange) *goja.Object {
	c := a.c
	res := c.vm.NewObject()
	chain := func(fn func(call goja.FunctionCall)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn(call)
			return res
		}
	}
	setHeaders := func(call goja.FunctionCall) {
		if obj, ok := call.Argument(0).(*goja.Object); ok && len(call.Arguments) == 1 {
			for _, k := range obj.Keys() {
				ex.SetHeader(k, obj.Get(k).String())
			}
			return
		}
		ex.SetHeader(call.Argument(0).String(), call.Argument(1).String())
	}
	sendJSON := func(v goja.Value) {
		if ex.Header("content-type") == "" {
			ex.SetHeader("content-type", "application/json; charset=utf-8")
		}
		ex.Resolve(c.exportJSON(v))
	}

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"status": chain(func(call goja.FunctionCall) { ex.SetStatus(int(call.Argument(0).ToInteger())) }),
		"set":    chain(setHeaders),
		"header": chain(setHeaders),
		"type": chain(func(call goja.FunctionCall) {
			ex.SetHeader("content-type", contentType(call.Argument(0).String()))
		}),
		"get": func(call goja.FunctionCall) goja.Value {
			if v := ex.Header(call.Argument(0).String()); v != "" {
				return c.vm.ToValue(v)
			}
			return goja.Undefined()
		},
		"json": chain(func(call goja.FunctionCall) { sendJSON(call.Argument(0)) }),
		"send": chain(func(call goja.FunctionCall) {
			body := call.Argument(0)
			switch {
			case goja.IsUndefined(body) || goja.IsNull(body):
				ex.Resolve("")
			case isObject(body):
				sendJSON(body)
			default:
				if ex.Header("content-type") == "" {
					ex.SetHeader("content-type", "text/html; charset=utf-8")
				}
				ex.Resolve(body.String())
			}
		}),
		"end": chain(func(call goja.FunctionCall) {
			body := call.Argument(0)
			if goja.IsUndefined(body) || goja.IsNull(body) {
				ex.Resolve("")
				return
			}
			ex.Resolve(body.String())
		}),
		"sendStatus": chain(func(call goja.FunctionCall) {
			code := int(call.Argument(0).ToInteger())
			ex.SetStatus(code)
			ex.SetHeader("content-type", "text/plain; charset=utf-8")
			ex.Resolve(http.StatusText(code))
		}),
		"redirect": chain(func(call goja.FunctionCall) {
			code, location := http.StatusFound, call.Argument(0)
			if len(call.Arguments) > 1 {
				code, location = int(call.Argument(0).ToInteger()), call.Argument(1)
			}
			ex.SetStatus(code)
			ex.SetHeader("location", location.String())
			ex.Resolve("Redirecting to " + location.String())
		}),
	}
	for name, fn := range methods {
		_ = res.Set(name, fn)
	}
	_ = res.Set("locals", c.vm.NewObject())
	_ = res.DefineAccessorProperty("headersSent", c.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(ex.Resolved())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = res.DefineAccessorProperty("statusCode", c.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(ex.StatusCode())
	}), c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ex.SetStatus(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}), goja.FLAG_FALSE, goja.FLAG_TRUE)
	return res
}

// exportJSON converts v to plain Go data the way JSON.stringify sees it
func (c *Context) exportJSON(v goja.Value) any {
	out, err := c.helpers["clone"](goja.Undefined(), v)
	if err != nil {
		c.rethrow(err)
	}
	return out.Export()
}

func isObject(v goja.Value) bool {
	_, ok := v.(*goja.Object)
	return ok
}

func contentType(t string) string {
	switch strings.ToLower(t) {
	case "json":
		return "application/json; charset=utf-8"
	case "html":
		return "text/html; charset=utf-8"
	case "text", "txt":
		return "text/plain; charset=utf-8"
	}
	return t
}

func encodeQuery(query map[string]string) string {
	values := make(url.Values, len(query))
	for k, v := range query {
		values.Set(k, v)
	}
	return values.Encode()
}
