package template

import "github.com/GriffinCanCode/playground/internal/sandbox/mode"

// The fragments below run inside one strict IIFE in the generated document,
// after PRESETS, FILENAME, PLACEHOLDER and DEFERRED are declared. DEFERRED
// is set when a capability is an ES module; those globals exist only once
// the window has loaded.

// bootstrapJS installs the console/error interceptor, theming and the
// transpile step shared by every mode.
const bootstrapJS = `var port = null;

function post(type, payload) {
  var message = payload === undefined ? { type: type } : { type: type, payload: payload };
  if (port) {
    port.postMessage(message);
    return;
  }
  window.parent.postMessage(message, '*');
}

function stringify(value) {
  if (typeof value === 'string') return value;
  if (value === undefined) return 'undefined';
  if (typeof value === 'function' || typeof value === 'symbol') return String(value);
  if (value instanceof Error) return value.stack || value.name + ': ' + value.message;
  try {
    var text = JSON.stringify(value, null, 2);
    return text === undefined ? String(value) : text;
  } catch (err) {
    return '[Circular]';
  }
}

function format(args) {
  return Array.prototype.map.call(args, stringify).join(' ');
}

var nativeConsole = {};
['log', 'info', 'warn', 'error', 'table'].forEach(function (name) {
  nativeConsole[name] = (console[name] || console.log).bind(console);
});
var consoleKinds = { log: 'CONSOLE_LOG', info: 'CONSOLE_LOG', warn: 'CONSOLE_WARN', error: 'CONSOLE_ERROR' };
Object.keys(consoleKinds).forEach(function (name) {
  console[name] = function () {
    nativeConsole[name].apply(console, arguments);
    post(consoleKinds[name], format(arguments));
  };
});
console.table = function (data) {
  nativeConsole.table.apply(console, arguments);
  post('CONSOLE_LOG', stringify(data));
};

function lineOf(error) {
  var match = error && typeof error.stack === 'string' && /<anonymous>:(\d+):\d+/.exec(error.stack);
  return match ? Math.max(Number(match[1]) - 2, 1) : 0;
}

function describe(error, line) {
  var message = error && error.message ? error.message : String(error);
  return line ? message + ' (line ' + line + ')' : message;
}

function reportError(error) {
  post('RUNTIME_ERROR', describe(error, lineOf(error)));
}

window.onerror = function (message, source, line, column, error) {
  post('RUNTIME_ERROR', describe(error || message, line));
  return true;
};

window.addEventListener('unhandledrejection', function (event) {
  var reason = event.reason;
  post('RUNTIME_ERROR', 'Unhandled Promise Rejection: ' + (reason && reason.message ? reason.message : stringify(reason)));
});

function applyTheme(mode) {
  document.documentElement.setAttribute('data-theme', mode === 'dark' ? 'dark' : 'light');
}

function compile(code) {
  if (!PRESETS) return code;
  try {
    return Babel.transform(code, { presets: PRESETS, filename: FILENAME }).code;
  } catch (error) {
    post('RUNTIME_ERROR', 'Transpile error: ' + (error && error.message ? error.message : String(error)));
    return null;
  }
}
`

// dispatchJS wires the port handshake and routes host commands. Commands
// other than THEME wait for load when module capabilities are pending.
const dispatchJS = `var loaded = !DEFERRED || document.readyState === 'complete';
var backlog = [];

if (!loaded) {
  window.addEventListener('load', function () {
    loaded = true;
    var queued = backlog;
    backlog = [];
    queued.forEach(dispatch);
  });
}

function dispatch(data) {
  if (!data || typeof data !== 'object') return;
  if (!loaded && data.type !== 'THEME') {
    backlog.push(data);
    return;
  }
  switch (data.type) {
    case 'EXECUTE':
      try {
        runMode(String((data.payload && data.payload.code) || ''), document.getElementById('root'));
      } catch (error) {
        reportError(error);
      }
      break;
    case 'THEME':
      applyTheme(data.payload && data.payload.mode);
      break;
    case 'SIMULATE_REQUEST':
      if (typeof simulateRequest === 'function') simulateRequest(data.payload || {});
      break;
  }
}

window.addEventListener('message', function (event) {
  var data = event.data;
  if (data && data.type === 'INIT_PORT') {
    if (!event.ports || !event.ports[0]) return;
    if (port) port.close();
    port = event.ports[0];
    port.onmessage = function (e) { dispatch(e.data); };
    post('READY_SIGNAL');
    return;
  }
  dispatch(data);
});
`

const scriptRunJS = `function runMode(code, root) {
  root.innerHTML = '';
  var compiled = compile(code);
  if (compiled === null) return;
  try {
    new Function('root', compiled)(root);
  } catch (error) {
    reportError(error);
  }
}
`

const sketchRunJS = `var sketch = null;
var canvasObserver = null;

function runMode(code, root) {
  if (sketch) {
    sketch.remove();
    sketch = null;
  }
  if (canvasObserver) {
    canvasObserver.disconnect();
    canvasObserver = null;
  }
  root.innerHTML = '';
  window.setup = null;
  window.draw = null;

  canvasObserver = new MutationObserver(function (records) {
    records.forEach(function (record) {
      Array.prototype.forEach.call(record.addedNodes, function (node) {
        if (node.nodeName === 'CANVAS' && !root.contains(node)) root.appendChild(node);
      });
    });
  });
  canvasObserver.observe(document.body, { childList: true, subtree: true });

  try {
    (0, eval)(code);
    if (typeof window.setup === 'function' || typeof window.draw === 'function') {
      sketch = new p5();
    }
  } catch (error) {
    reportError(error);
  }
}
`

const componentRunJS = `var mountedRoot = null;
var modules = { 'react': React, 'react-dom': ReactDOM, 'react-dom/client': ReactDOM };
var nativeCreateRoot = ReactDOM.createRoot.bind(ReactDOM);

ReactDOM.createRoot = function (container, options) {
  mountedRoot = nativeCreateRoot(container, options);
  return mountedRoot;
};

function requireModule(name) {
  if (Object.prototype.hasOwnProperty.call(modules, name)) return modules[name];
  throw new Error("Module not found: '" + name + "'. Only react, react-dom and react-dom/client are available.");
}

function runMode(code, root) {
  if (mountedRoot) {
    mountedRoot.unmount();
    mountedRoot = null;
  }
  root.innerHTML = '';
  var compiled = compile(code);
  if (compiled === null) return;
  var module = { exports: {} };
  try {
    new Function('require', 'module', 'exports', 'root', compiled)(requireModule, module, module.exports, root);
    var App = module.exports.default || module.exports.App || window.App;
    if (!mountedRoot && typeof App === 'function') {
      ReactDOM.createRoot(root).render(React.createElement(App));
    }
  } catch (error) {
    reportError(error);
  }
}
`

const expressRunJS = `var app = null;
var listening = false;

function compilePath(path, prefix) {
  var keys = [];
  var source = String(path || '/').replace(/\/+$/, '')
    .replace(/[.+?^${}()|[\]\\]/g, '\\$&')
    .replace(/\*/g, '.*')
    .replace(/:(\w+)/g, function (_, key) { keys.push(key); return '([^/]+)'; });
  return { regex: new RegExp('^' + source + (prefix ? '(?:/.*)?$' : '/?$')), keys: keys };
}

function createApp() {
  var layers = [];
  function register(method) {
    return function (path) {
      var compiled = compilePath(path, false);
      Array.prototype.slice.call(arguments, 1).forEach(function (handler) {
        layers.push({ method: method, regex: compiled.regex, keys: compiled.keys, handler: handler });
      });
      return application;
    };
  }
  var application = {
    layers: layers,
    get: register('GET'),
    post: register('POST'),
    put: register('PUT'),
    patch: register('PATCH'),
    delete: register('DELETE'),
    all: register('ALL'),
    use: function () {
      var args = Array.prototype.slice.call(arguments);
      var path = typeof args[0] === 'string' ? args.shift() : '/';
      var compiled = compilePath(path, true);
      args.forEach(function (handler) {
        layers.push({ method: 'ALL', regex: compiled.regex, keys: compiled.keys, handler: handler });
      });
      return application;
    },
    set: function () { return application; },
    listen: function () {
      var callback = arguments[arguments.length - 1];
      if (!listening) {
        listening = true;
        post('SERVER_READY');
      }
      if (typeof callback === 'function') callback();
      return { close: function () {} };
    }
  };
  return application;
}

function express() {
  app = createApp();
  return app;
}
express.json = function () { return function (req, res, next) { next(); }; };
express.urlencoded = express.json;
express.static = express.json;

function requireModule(name) {
  if (name === 'express') return express;
  throw new Error("Module not found: '" + name + "'. Only express is available.");
}

function runMode(code, root) {
  app = null;
  listening = false;
  root.innerHTML = '';
  var compiled = compile(code);
  if (compiled === null) return;
  var module = { exports: {} };
  try {
    new Function('require', 'module', 'exports', 'express', compiled)(requireModule, module, module.exports, express);
  } catch (error) {
    listening = false;
    reportError(error);
  }
}

function parseQuery(search) {
  var query = {};
  String(search || '').split('&').forEach(function (pair) {
    if (!pair) return;
    var parts = pair.split('=');
    query[decodeURIComponent(parts[0])] = decodeURIComponent((parts[1] || '').replace(/\+/g, ' '));
  });
  return query;
}

function simulateRequest(request) {
  if (!app || !listening) return;
  var method = String(request.method || 'GET').toUpperCase();
  var target = String(request.path || '/').split('?');
  var path = target[0] || '/';
  var response = { status: 200, headers: {} };
  var done = false;

  function finish(data) {
    if (done) return;
    done = true;
    var payload = { status: response.status, data: data, headers: response.headers };
    if (request.id) payload.id = request.id;
    post('REQUEST_COMPLETE', payload);
  }

  var res = {
    status: function (code) { response.status = code; return res; },
    set: function (name, value) { response.headers[String(name).toLowerCase()] = String(value); return res; },
    json: function (body) {
      res.set('content-type', 'application/json');
      finish(body === undefined ? null : JSON.parse(JSON.stringify(body)));
      return res;
    },
    send: function (body) {
      if (body !== null && typeof body === 'object') return res.json(body);
      finish(body === undefined ? '' : String(body));
      return res;
    },
    end: function (body) { finish(body === undefined ? '' : String(body)); return res; },
    sendStatus: function (code) { response.status = code; finish(String(code)); return res; }
  };
  res.header = res.set;

  var req = { method: method, path: path, url: request.path || '/', params: {}, query: parseQuery(target[1]), headers: {}, body: request.body };
  var index = 0;

  function next(error) {
    if (done) return;
    if (error) {
      response.status = 500;
      finish({ error: error && error.message ? error.message : String(error) });
      return;
    }
    while (index < app.layers.length) {
      var layer = app.layers[index++];
      if (layer.method !== 'ALL' && layer.method !== method) continue;
      var match = layer.regex.exec(path);
      if (!match) continue;
      req.params = {};
      layer.keys.forEach(function (key, i) { req.params[key] = decodeURIComponent(match[i + 1]); });
      try {
        var result = layer.handler(req, res, next);
        if (result && typeof result.then === 'function') {
          result.then(null, function (err) { next(err || new Error('Handler rejected')); });
        }
      } catch (err) {
        next(err);
      }
      return;
    }
    response.status = 404;
    finish({ error: 'Cannot ' + method + ' ' + path });
  }

  next();
}
`

const honoRunJS = `var app = null;
var listening = false;

function markReady(instance) {
  app = instance;
  if (listening) return;
  listening = true;
  post('SERVER_READY');
}

function Hono(options) {
  var HonoBase = window.Hono;
  if (typeof HonoBase !== 'function') throw new Error('Hono failed to load');
  var instance = new HonoBase(options);
  app = instance;
  instance.notFound(function (c) {
    return c.json({ error: 'Cannot ' + c.req.method + ' ' + c.req.path }, 404);
  });
  instance.onError(function (err, c) {
    return c.json({ error: err && err.message ? err.message : String(err) }, 500);
  });
  instance.fire = function () { markReady(instance); };
  instance.listen = function () {
    var callback = arguments[arguments.length - 1];
    markReady(instance);
    if (typeof callback === 'function') callback();
  };
  return instance;
}

function serve(instance) {
  markReady(instance && typeof instance.fetch === 'function' ? instance : app);
}

function requireModule(name) {
  if (name === 'hono') return { Hono: Hono };
  throw new Error("Module not found: '" + name + "'. Only hono is available.");
}

function runMode(code, root) {
  app = null;
  listening = false;
  root.innerHTML = '';
  var compiled = compile(code);
  if (compiled === null) return;
  var module = { exports: {} };
  try {
    new Function('require', 'module', 'exports', 'Hono', 'serve', compiled)(requireModule, module, module.exports, Hono, serve);
  } catch (error) {
    listening = false;
    reportError(error);
  }
}

function simulateRequest(request) {
  if (!app || !listening) return;
  var method = String(request.method || 'GET').toUpperCase();
  var url = 'http://localhost' + (request.path || '/');

  function complete(status, data, headers) {
    var payload = { status: status, data: data, headers: headers };
    if (request.id) payload.id = request.id;
    post('REQUEST_COMPLETE', payload);
  }

  Promise.resolve()
    .then(function () { return app.fetch(new Request(url, { method: method })); })
    .then(function (response) {
      var headers = {};
      response.headers.forEach(function (value, key) { headers[key] = value; });
      var type = response.headers.get('content-type') || '';
      var body = type.indexOf('application/json') !== -1 ? response.json() : response.text();
      return body.then(function (data) { complete(response.status, data, headers); });
    })
    .catch(function (error) {
      complete(500, { error: error && error.message ? error.message : String(error) }, {});
    });
}
`

const headlessRunJS = `function runMode(code, root) {
  root.innerHTML = PLACEHOLDER;
  var compiled = compile(code);
  if (compiled === null) return;
  try {
    new Function('document', 'window', compiled)(null, null);
  } catch (error) {
    reportError(error);
  }
}
`

var runLogic = map[mode.Mode]string{
	mode.DOM:        scriptRunJS,
	mode.TypeScript: scriptRunJS,
	mode.P5:         sketchRunJS,
	mode.React:      componentRunJS,
	mode.ReactTS:    componentRunJS,
	mode.Express:    expressRunJS,
	mode.ExpressTS:  expressRunJS,
	mode.Hono:       honoRunJS,
	mode.HeadlessJS: headlessRunJS,
	mode.HeadlessTS: headlessRunJS,
}
