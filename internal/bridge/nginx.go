package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/phasejs/internal/core"
)

// nginxJS builds the per-invocation capability objects. It captures the raw
// natives registered by SetupNative and removes them from globalThis, so the
// only way to reach the host is through an object bound to a handle.
// %s is the JSON object of host constants.
const nginxJS = `
(function() {
	var constants = %s;
	var sendHeader = globalThis.__ngx_send_header;
	var rputs = globalThis.__ngx_rputs;
	var getContentType = globalThis.__ngx_get_content_type;
	var setContentType = globalThis.__ngx_set_content_type;
	var uri = globalThis.__ngx_uri;
	var log = globalThis.__ngx_log;
	var consoleNative = globalThis.__ngx_console;
	var natives = ['__ngx_send_header', '__ngx_rputs', '__ngx_get_content_type',
		'__ngx_set_content_type', '__ngx_uri', '__ngx_log', '__ngx_console'];
	for (var i = 0; i < natives.length; i++) {
		delete globalThis[natives[i]];
	}

	var proto = {};
	for (var k in constants) {
		if (Object.prototype.hasOwnProperty.call(constants, k)) {
			Object.defineProperty(proto, k, { value: constants[k], enumerable: true });
		}
	}

	function format(args) {
		var parts = [];
		for (var j = 0; j < args.length; j++) {
			var arg = args[j];
			if (typeof arg === 'object' && arg !== null) {
				try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push('[object Object]'); }
			} else {
				parts.push(String(arg));
			}
		}
		return parts.join(' ');
	}

	function bindNginx(handle) {
		var ngx = Object.create(proto);

		ngx.send_header = function(status) {
			if (typeof status !== 'number' || status !== Math.floor(status)) {
				throw new TypeError('send_header: integer status required');
			}
			sendHeader(handle, status);
			return ngx;
		};
		ngx.rputs = function(msg) {
			if (typeof msg !== 'string') return ngx;
			rputs(handle, msg);
			return ngx;
		};
		ngx.log = function(level, msg) {
			if (typeof level !== 'number') {
				throw new TypeError('log: numeric level required');
			}
			log(handle, level, String(msg));
			return ngx;
		};

		function Request() {
			if (!(this instanceof Request)) return new Request();
		}
		Object.defineProperty(Request.prototype, 'uri', {
			get: function() { return uri(handle); }
		});
		Object.defineProperty(Request.prototype, 'content_type', {
			get: function() { return getContentType(handle); },
			set: function(v) { setContentType(handle, String(v)); }
		});
		ngx.Request = Request;
		return ngx;
	}

	function bindConsole(handle) {
		var con = {};
		var methods = ['log', 'info', 'warn', 'error', 'debug'];
		for (var m = 0; m < methods.length; m++) {
			(function(method) {
				con[method] = function() {
					consoleNative(handle, method, format(arguments));
				};
			})(methods[m]);
		}
		return con;
	}

	Object.defineProperty(globalThis, '__phasejs_bind', {
		value: { nginx: bindNginx, console: bindConsole },
		enumerable: false
	});
})();
`

// SetupNginx evaluates the capability object factory. Must run after
// SetupNative.
func SetupNginx(rt core.JSRuntime, _ *core.Bindings) error {
	consts := make(map[string]int, len(hostConstants))
	for _, c := range hostConstants {
		consts[c.Name] = c.Value
	}
	data, err := json.Marshal(consts)
	if err != nil {
		return fmt.Errorf("encoding host constants: %w", err)
	}
	if err := rt.Eval(fmt.Sprintf(nginxJS, data)); err != nil {
		return fmt.Errorf("installing Nginx bridge: %w", err)
	}
	return nil
}
