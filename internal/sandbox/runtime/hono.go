package runtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/playground/internal/sandbox/mockserver"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

var honoMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
	http.MethodOptions,
}

func runHono(c *Context, code string) error {
	c.server.Reset()
	c.hono = nil
	c.root.ReplaceChildren()

	src, err := c.source(code)
	if err != nil {
		return err
	}
	fn, err := c.compile("require, module, exports, Hono, serve", src)
	if err != nil {
		return err
	}
	module, exports := c.vm.NewObject(), c.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	_, err = fn(goja.Undefined(), c.installRequire(), module, exports, c.vm.Get("Hono"), c.vm.Get("serve"))
	return err
}

// newHono is the Hono constructor. Routing happens here; the request
// context and middleware composition live in the sandbox shim, and every
// request enters through app.fetch.
func (c *Context) newHono(call goja.ConstructorCall) *goja.Object {
	app := call.This
	router := mockserver.NewRouter[goja.Value]()
	notFound, onError := goja.Undefined(), goja.Undefined()

	handlers := func(args []goja.Value) []goja.Value {
		for _, h := range args {
			if _, ok := goja.AssertFunction(h); !ok {
				c.throw("Handler must be a function, got %s", h.String())
			}
		}
		return args
	}
	add := func(method string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			pattern := call.Argument(0).String()
			if err := router.Add(method, pattern, handlers(call.Arguments[1:])...); err != nil {
				c.throw("Invalid route %s: %s", pattern, err)
			}
			return app
		}
	}
	for _, method := range honoMethods {
		_ = app.Set(strings.ToLower(method), add(method))
	}
	_ = app.Set("all", add(mockserver.MethodAll))
	_ = app.Set("on", func(call goja.FunctionCall) goja.Value {
		methods := []string{call.Argument(0).String()}
		if list, ok := call.Argument(0).(*goja.Object); ok && list.ClassName() == "Array" {
			methods = methods[:0]
			_ = c.vm.ExportTo(list, &methods)
		}
		for _, m := range methods {
			add(strings.ToUpper(m))(goja.FunctionCall{This: app, Arguments: call.Arguments[1:]})
		}
		return app
	})
	_ = app.Set("use", func(call goja.FunctionCall) goja.Value {
		pattern, args := "*", call.Arguments
		if len(args) > 0 {
			if s, ok := args[0].Export().(string); ok {
				pattern, args = s, args[1:]
			}
		}
		if err := router.Use(pattern, handlers(args)...); err != nil {
			c.throw("Invalid path %s: %s", pattern, err)
		}
		return app
	})
	_ = app.Set("notFound", func(call goja.FunctionCall) goja.Value {
		notFound = handlers([]goja.Value{call.Argument(0)})[0]
		return app
	})
	_ = app.Set("onError", func(call goja.FunctionCall) goja.Value {
		onError = handlers([]goja.Value{call.Argument(0)})[0]
		return app
	})

	fetch := func(call goja.FunctionCall) goja.Value {
		request := call.Argument(0).ToObject(c.vm)
		method := strings.ToUpper(request.Get("method").String())
		path, query := mockserver.SplitURL(requestTarget(request.Get("url").String()))

		var chain []any
		for _, m := range router.Match(method, path) {
			for _, h := range m.Route.Handlers {
				entry := c.vm.NewObject()
				_ = entry.Set("handler", h)
				_ = entry.Set("params", c.object(m.Params))
				chain = append(chain, entry)
			}
		}
		out, err := c.helpers["honoDispatch"](goja.Undefined(), request, c.vm.ToValue(path),
			c.object(query), c.vm.NewArray(chain...), notFound, onError)
		if err != nil {
			c.rethrow(err)
		}
		return out
	}
	_ = app.Set("fetch", fetch)
	_ = app.Set("request", func(call goja.FunctionCall) goja.Value {
		input := call.Argument(0)
		if s, ok := input.Export().(string); ok && strings.HasPrefix(s, "/") {
			input = c.vm.ToValue("http://localhost" + s)
		}
		req, err := c.vm.New(c.vm.Get("Request"), input, call.Argument(1))
		if err != nil {
			c.rethrow(err)
		}
		return fetch(goja.FunctionCall{This: app, Arguments: []goja.Value{req}})
	})

	ready := func(goja.FunctionCall) goja.Value {
		c.markReady(app)
		return app
	}
	_ = app.Set("fire", ready)
	_ = app.Set("listen", ready)
	return nil
}

// serve accepts an app or any object with a fetch method
func (c *Context) serve(call goja.FunctionCall) goja.Value {
	target, ok := call.Argument(0).(*goja.Object)
	if !ok {
		c.throw("serve() expects an app with a fetch method")
	}
	if _, ok := goja.AssertFunction(target.Get("fetch")); !ok {
		c.throw("serve() expects an app with a fetch method")
	}
	c.markReady(target)
	if cb, ok := goja.AssertFunction(call.Argument(1)); ok {
		info := c.vm.NewObject()
		_ = info.Set("port", 3000)
		if _, err := cb(goja.Undefined(), info); err != nil {
			c.rethrow(err)
		}
	}
	return target
}

func (c *Context) markReady(app *goja.Object) {
	c.hono = app
	c.express = nil
	if c.server.Listen() {
		c.emit(protocol.NewServerReady())
	}
}

// handleHono sends the exchange through app.fetch and resolves it with
// the decoded Response
func (c *Context) handleHono(ex *mockserver.Exchange) {
	target := ex.Path
	if len(ex.Query) > 0 {
		target += "?" + encodeQuery(ex.Query)
	}
	done := c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		ex.SetStatus(int(call.Argument(0).ToInteger()))
		if headers, ok := call.Argument(2).(*goja.Object); ok {
			for _, k := range headers.Keys() {
				ex.SetHeader(k, headers.Get(k).String())
			}
		}
		ex.Resolve(c.exportJSON(call.Argument(1)))
		return goja.Undefined()
	})
	err := c.guard.run(func() error {
		_, err := c.helpers["simulate"](goja.Undefined(), c.hono,
			c.vm.ToValue(ex.Method), c.vm.ToValue("http://localhost"+target), done)
		return err
	})
	if err != nil {
		ex.Fail(c.scriptError(err).Message)
	}
}

// requestTarget reduces an absolute URL to path and query
func requestTarget(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.RequestURI()
}
