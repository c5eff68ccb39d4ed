package runtime

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/errors"
)

// Host is implemented by structs exposed to the guest as a module. Every
// exported method with the guestbridge.HostFunc signature becomes a
// module attribute, named in snake_case (GetValue -> get_value).
type Host interface {
	// Module returns the guest module name the functions are defined in.
	Module() string
}

// ExplicitRegistrar lets a host provide exact guest names instead of the
// derived snake_case ones.
type ExplicitRegistrar interface {
	Register() map[string]guestbridge.HostFunc
}

// HostRegistry exposes host functions and values as guest module
// attributes. Registered entries are lent through the runtime's table and
// live until the guest drops them or the runtime is finalized.
type HostRegistry struct {
	rt      *Runtime
	mu      sync.RWMutex
	modules map[string][]string
}

func newHostRegistry(rt *Runtime) *HostRegistry {
	return &HostRegistry{
		rt:      rt,
		modules: make(map[string][]string),
	}
}

var hostFuncType = reflect.TypeFor[func(context.Context, []any, map[string]any) (any, error)]()

// RegisterHost registers the functions of h in the module h names.
func (r *HostRegistry) RegisterHost(h Host) error {
	module := h.Module()
	if module == "" {
		return errors.InvalidInput(errors.PhaseRuntime, h, "module name cannot be empty")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		funcs := er.Register()
		for _, name := range slices.Sorted(maps.Keys(funcs)) {
			if err := r.RegisterFunc(module, name, funcs[name]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	registered := 0
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Module" {
			continue
		}
		bound := rv.Method(i)
		if bound.Type() != hostFuncType {
			r.rt.log.Debug("skipping host method",
				zap.String("module", module),
				zap.String("method", method.Name),
				zap.Stringer("type", bound.Type()))
			continue
		}
		fn := bound.Interface().(func(context.Context, []any, map[string]any) (any, error))
		if err := r.RegisterFunc(module, toSnakeCase(method.Name), fn); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			HostType(rt.String()).
			Detail("host has no methods with the host function signature").
			Build()
	}
	return nil
}

// RegisterFunc defines fn as attribute name of the guest module.
func (r *HostRegistry) RegisterFunc(module, name string, fn guestbridge.HostFunc) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseRuntime, name, "host function cannot be nil")
	}
	return r.RegisterValue(module, name, fn)
}

// RegisterValue marshals v and defines it as attribute name of the guest
// module. Host functions become guest callables; other values follow the
// usual marshalling rules.
func (r *HostRegistry) RegisterValue(module, name string, v any) error {
	if err := r.rt.check(); err != nil {
		return err
	}
	if module == "" {
		return errors.InvalidInput(errors.PhaseRuntime, module, "module name cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseRuntime, name, "attribute name cannot be empty")
	}

	h, err := r.rt.factory.Marshal(v)
	if err != nil {
		return err
	}
	obj, ok := h.(*engine.Object)
	if !ok {
		// None marshals to a nil handle.
		obj = r.rt.eng.None()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rt.eng.Define(r.rt.eng.Module(module), name, obj)
	if !slices.Contains(r.modules[module], name) {
		r.modules[module] = append(r.modules[module], name)
	}
	r.rt.log.Debug("host entry registered",
		zap.String("module", module),
		zap.String("attr", name),
		zap.Stringer("tag", obj.Tag()))
	return nil
}

// Names returns the attribute names registered in module, sorted.
func (r *HostRegistry) Names(module string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(slices.Values(r.modules[module]))
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetHTTPURL -> get_http_url
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
