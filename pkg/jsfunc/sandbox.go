package jsfunc

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

var frozenBuiltins = []string{
	"Object",
	"Array",
	"Function",
	"String",
	"Number",
	"Boolean",
	"Date",
	"RegExp",
	"Error",
	"Math",
	"JSON",
}

const freezeScript = `
(function() {
	return function(obj) {
		if (obj) {
			Object.freeze(obj);
			if (obj.prototype) {
				Object.freeze(obj.prototype);
			}
		}
	};
})()
`

// secure applies the restrictions for level to a fresh runtime and installs
// a console that writes to logger
func secure(vm *goja.Runtime, level string, logger *zap.Logger) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if level == SecurityLevelStrict {
		err := vm.Set("eval", func(goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(NewSecurityError("eval is not allowed in strict security mode")))
		})
		if err != nil {
			return fmt.Errorf("failed to restrict eval: %w", err)
		}
	}

	if level != SecurityLevelStrict {
		if err := vm.Set("console", newConsole(vm, logger)); err != nil {
			return fmt.Errorf("failed to install console: %w", err)
		}
	}

	if level == SecurityLevelPermissive {
		return nil
	}

	val, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freeze, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}
	for _, name := range frozenBuiltins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}
		if _, err := freeze(goja.Undefined(), obj); err != nil {
			logger.Debug("Failed to freeze builtin", zap.String("builtin", name), zap.Error(err))
		}
	}
	return nil
}

func newConsole(vm *goja.Runtime, logger *zap.Logger) *goja.Object {
	console := vm.NewObject()
	write := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "error":
				logger.Error(msg, zap.String("source", "console"))
			case "warn":
				logger.Warn(msg, zap.String("source", "console"))
			default:
				logger.Info(msg, zap.String("source", "console"))
			}
			return goja.Undefined()
		}
	}
	_ = console.Set("log", write("log"))
	_ = console.Set("info", write("info"))
	_ = console.Set("warn", write("warn"))
	_ = console.Set("error", write("error"))
	return console
}
