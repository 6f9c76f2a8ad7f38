package runtime

import (
	"time"

	"github.com/dop251/goja"
)

type timer struct {
	id     int64
	fn     goja.Value
	args   []goja.Value
	delay  time.Duration
	repeat bool
	frame  bool
	t      *time.Timer
}

// installTimers wires setTimeout, setInterval and requestAnimationFrame.
// Expired timers post a job into the mailbox; callbacks always run on the
// context goroutine.
func (c *Context) installTimers() error {
	global := c.vm.GlobalObject()

	set := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn := call.Argument(0)
			if _, ok := goja.AssertFunction(fn); !ok {
				panic(c.vm.NewTypeError("callback must be a function"))
			}
			delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
			if repeat && delay < c.cfg.MinInterval {
				delay = c.cfg.MinInterval
			}
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = append(args, call.Arguments[2:]...)
			}
			return c.vm.ToValue(c.schedule(&timer{fn: fn, args: args, delay: delay, repeat: repeat}))
		}
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		c.clearTimer(call.Argument(0).ToInteger())
		return goja.Undefined()
	}

	performance := c.vm.NewObject()
	if err := performance.Set("now", func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(c.now())
	}); err != nil {
		return err
	}

	bindings := map[string]any{
		"setTimeout":    set(false),
		"setInterval":   set(true),
		"clearTimeout":  cancel,
		"clearInterval": cancel,
		"requestAnimationFrame": func(call goja.FunctionCall) goja.Value {
			fn := call.Argument(0)
			if _, ok := goja.AssertFunction(fn); !ok {
				panic(c.vm.NewTypeError("callback must be a function"))
			}
			return c.vm.ToValue(c.schedule(&timer{fn: fn, delay: c.cfg.FrameInterval, frame: true}))
		},
		"cancelAnimationFrame": cancel,
		"performance":          performance,
	}
	for name, v := range bindings {
		if err := global.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// now is milliseconds since the context started
func (c *Context) now() float64 {
	return float64(time.Since(c.started).Microseconds()) / 1000
}

func (c *Context) schedule(t *timer) int64 {
	c.nextTimer++
	t.id = c.nextTimer
	c.timers[t.id] = t
	c.arm(t)
	return t.id
}

func (c *Context) arm(t *timer) {
	id := t.id
	t.t = time.AfterFunc(t.delay, func() {
		c.mailbox.Push(task{fn: func() { c.fire(id) }})
	})
}

func (c *Context) fire(id int64) {
	t, ok := c.timers[id]
	if !ok {
		return
	}
	if !t.repeat {
		delete(c.timers, id)
	}

	args := t.args
	if t.frame {
		args = []goja.Value{c.vm.ToValue(c.now())}
	}
	if _, err := c.call(t.fn, goja.Undefined(), args...); err != nil {
		c.reportError(err)
	}

	// the callback may have cleared its own interval
	if t.repeat {
		if _, live := c.timers[id]; live {
			c.arm(t)
		}
	}
}

func (c *Context) clearTimer(id int64) {
	if t, ok := c.timers[id]; ok {
		t.t.Stop()
		delete(c.timers, id)
	}
}

func (c *Context) stopTimers() {
	for id, t := range c.timers {
		t.t.Stop()
		delete(c.timers, id)
	}
}
