package engine

import (
	"context"
	"math/big"
	"strings"

	"github.com/wippyai/guest-bridge/tag"
)

// exceptionNames lists the builtin exception classes and their base.
var exceptionNames = [][2]string{
	{"Exception", "BaseException"},
	{"StopIteration", "Exception"},
	{"TypeError", "Exception"},
	{"ValueError", "Exception"},
	{"AttributeError", "Exception"},
	{"LookupError", "Exception"},
	{"KeyError", "LookupError"},
	{"IndexError", "LookupError"},
	{"RuntimeError", "Exception"},
	{"NotImplementedError", "RuntimeError"},
	{"ImportError", "Exception"},
	{"ModuleNotFoundError", "ImportError"},
	{"ArithmeticError", "Exception"},
	{"ZeroDivisionError", "ArithmeticError"},
}

func (e *Engine) bootstrap() {
	// type and object refer to each other, so they are wired by hand.
	typ := &Object{id: e.nextID.Add(1), eng: e, tag: tag.Type}
	obj := &Object{id: e.nextID.Add(1), eng: e, tag: tag.Type, class: typ}
	typ.class = typ
	typ.payload = &class{name: "type", bases: []*Object{obj}, mro: []*Object{typ, obj}}
	obj.payload = &class{
		name: "object",
		mro:  []*Object{obj},
		construct: func(_ context.Context, cls *Object, _ []*Object, _ map[string]*Object) (*Object, error) {
			return e.newObject(tag.Object, cls, nil), nil
		},
	}
	e.types["type"] = typ
	e.types["object"] = obj

	for _, name := range []string{
		"function", "method", "str", "NoneType", "int", "bool", "float", "complex",
		"bytes", "bytearray", "tuple", "list", "dict", "set", "datetime",
		"module", "iterator", "host_callable", "host_value", "ellipsis",
	} {
		e.types[name] = e.NewClass(name, nil, nil)
	}
	e.types["bool"].payload.(*class).bases = []*Object{e.types["int"]}
	e.types["bool"].payload.(*class).mro = linearize(e.types["bool"], []*Object{e.types["int"]})

	// names created before str existed get their class now
	for _, t := range e.types {
		if n, ok := t.own("__name__"); ok {
			n.class = e.types["str"]
		}
	}
	for _, name := range []string{"type", "object"} {
		e.types[name].store("__name__", e.Str(name))
	}

	e.none = e.newObject(tag.None, e.types["NoneType"], nil)
	e.yes = e.newObject(tag.Bool, e.types["bool"], true)
	e.no = e.newObject(tag.Bool, e.types["bool"], false)

	e.installObjectMethods()
	e.installNumberMethods()
	e.installSequenceMethods()
	e.installExceptions()

	e.builtins = e.Module("builtins")
	e.main = e.Module("__main__")
	e.installBuiltinFunctions()

	for name, t := range e.types {
		if name == "host_callable" || name == "host_value" || name == "method" || name == "iterator" || name == "module" {
			continue
		}
		e.builtins.store(name, t)
	}
	e.builtins.store("None", e.none)
	e.builtins.store("True", e.yes)
	e.builtins.store("False", e.no)
	e.builtins.store("Ellipsis", e.newObject(tag.Unsupported, e.types["ellipsis"], nil))
}

func (e *Engine) def(cls *Object, name string, fn NativeFunc) {
	cls.store(name, e.Func(name, fn))
}

func (e *Engine) installObjectMethods() {
	obj := e.types["object"]
	e.def(obj, "__str__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Str(Str(args[0])), nil
	})
	e.def(obj, "__repr__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Str(Repr(args[0])), nil
	})
	e.def(obj, "__eq__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("__eq__", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		return e.Bool(equal(args[0], args[1])), nil
	})
	e.def(obj, "__ne__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("__ne__", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		return e.Bool(!equal(args[0], args[1])), nil
	})

	iter := e.types["iterator"]
	e.def(iter, "__iter__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return args[0], nil
	})
	e.def(iter, "__next__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		it, ok := args[0].payload.(*iterator)
		if !ok {
			return nil, e.Raise("TypeError", "not an iterator")
		}
		args[0].mu.Lock()
		v, more := it.next()
		args[0].mu.Unlock()
		if !more {
			return nil, e.Raise("StopIteration", "")
		}
		return v, nil
	})
}

// Iterator creates a builtin iterator over a snapshot of items.
func (e *Engine) Iterator(items []*Object) *Object {
	i := 0
	return e.newObject(tag.Object, e.types["iterator"], &iterator{next: func() (*Object, bool) {
		if i >= len(items) {
			return nil, false
		}
		v := items[i]
		i++
		return v, true
	}})
}

func (e *Engine) installNumberMethods() {
	binary := func(name string, op func(a, b *Object) (*Object, error)) NativeFunc {
		return func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
			if err := arity(name, args, 2); err != nil {
				return nil, e.asRaised(err)
			}
			return op(args[0], args[1])
		}
	}

	for _, name := range []string{"int", "float"} {
		cls := e.types[name]
		e.def(cls, "__add__", binary("__add__", e.arith('+')))
		e.def(cls, "__sub__", binary("__sub__", e.arith('-')))
		e.def(cls, "__mul__", binary("__mul__", e.arith('*')))
		e.def(cls, "__truediv__", binary("__truediv__", e.arith('/')))
		e.def(cls, "__lt__", binary("__lt__", e.order(func(c int) bool { return c < 0 })))
		e.def(cls, "__le__", binary("__le__", e.order(func(c int) bool { return c <= 0 })))
		e.def(cls, "__gt__", binary("__gt__", e.order(func(c int) bool { return c > 0 })))
		e.def(cls, "__ge__", binary("__ge__", e.order(func(c int) bool { return c >= 0 })))
	}

	e.types["int"].payload.(*class).construct = func(_ context.Context, _ *Object, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) == 0 {
			return e.Int(0), nil
		}
		switch a := args[0]; a.tag {
		case tag.Integer, tag.Bool:
			n, _ := a.bigInt()
			return e.BigInt(n), nil
		case tag.Float:
			n, _ := big.NewFloat(a.payload.(float64)).Int(nil)
			return e.BigInt(n), nil
		case tag.String:
			if n, ok := new(big.Int).SetString(strings.TrimSpace(a.payload.(string)), 10); ok {
				return e.BigInt(n), nil
			}
			return nil, e.Raise("ValueError", "invalid literal for int() with base 10: %s", Repr(a))
		}
		return nil, e.Raise("TypeError", "int() argument must be a string or a number, not '%s'", args[0].TypeName())
	}
	e.types["str"].payload.(*class).construct = func(ctx context.Context, _ *Object, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) == 0 {
			return e.Str(""), nil
		}
		return e.str(ctx, args[0])
	}
}

func (e *Engine) arith(op byte) func(a, b *Object) (*Object, error) {
	return func(a, b *Object) (*Object, error) {
		if x, ok := a.bigInt(); ok {
			if y, ok := b.bigInt(); ok {
				switch op {
				case '+':
					return e.BigInt(new(big.Int).Add(x, y)), nil
				case '-':
					return e.BigInt(new(big.Int).Sub(x, y)), nil
				case '*':
					return e.BigInt(new(big.Int).Mul(x, y)), nil
				}
			}
		}
		x, ok1 := number(a)
		y, ok2 := number(b)
		if !ok1 || !ok2 {
			return nil, e.Raise("TypeError", "unsupported operand type(s) for %c: '%s' and '%s'", op, a.TypeName(), b.TypeName())
		}
		var z big.Float
		switch op {
		case '+':
			z.Add(x, y)
		case '-':
			z.Sub(x, y)
		case '*':
			z.Mul(x, y)
		case '/':
			if y.Sign() == 0 {
				return nil, e.Raise("ZeroDivisionError", "division by zero")
			}
			z.Quo(x, y)
		}
		f, _ := z.Float64()
		return e.Float(f), nil
	}
}

func (e *Engine) order(test func(int) bool) func(a, b *Object) (*Object, error) {
	return func(a, b *Object) (*Object, error) {
		c, ok := compare(a, b)
		if !ok {
			return nil, e.Raise("TypeError", "'<' not supported between instances of '%s' and '%s'", a.TypeName(), b.TypeName())
		}
		return e.Bool(test(c)), nil
	}
}

func (e *Engine) installSequenceMethods() {
	length := func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Int(int64(e.length(args[0]))), nil
	}
	iterate := func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Iterator(e.elements(args[0])), nil
	}

	for _, name := range []string{"str", "bytes", "bytearray", "list", "tuple", "dict", "set"} {
		cls := e.types[name]
		e.def(cls, "__len__", length)
		e.def(cls, "__iter__", iterate)
	}

	str := e.types["str"]
	e.def(str, "__add__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) != 2 || args[1].tag != tag.String {
			return nil, e.Raise("TypeError", "can only concatenate str to str")
		}
		return e.Str(args[0].payload.(string) + args[1].payload.(string)), nil
	})
	e.def(str, "__lt__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.order(func(c int) bool { return c < 0 })(args[0], args[1])
	})
	e.def(str, "upper", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Str(strings.ToUpper(args[0].payload.(string))), nil
	})

	e.def(e.types["bytes"], "decode", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		return e.Str(string(args[0].payload.([]byte))), nil
	})

	list := e.types["list"]
	e.def(list, "append", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("append", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		return nil, e.AddItem(args[0], nil, args[1])
	})
	getitem := func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("__getitem__", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		items := args[0].items()
		n, ok := args[1].bigInt()
		if !ok {
			return nil, e.Raise("TypeError", "indices must be integers, not %s", args[1].TypeName())
		}
		i := int(n.Int64())
		if i < 0 {
			i += len(items)
		}
		if i < 0 || i >= len(items) {
			return nil, e.Raise("IndexError", "index out of range")
		}
		return items[i], nil
	}
	e.def(list, "__getitem__", getitem)
	e.def(e.types["tuple"], "__getitem__", getitem)

	dict := e.types["dict"]
	e.def(dict, "__getitem__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("__getitem__", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		if v, ok := e.dictGet(args[0], args[1]); ok {
			return v, nil
		}
		return nil, e.Raise("KeyError", "%s", Repr(args[1]))
	})
	e.def(dict, "__setitem__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("__setitem__", args, 3); err != nil {
			return nil, e.asRaised(err)
		}
		return nil, e.dictSet(args[0], args[1], args[2])
	})
	e.def(dict, "get", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) < 2 {
			return nil, e.Raise("TypeError", "get expected at least 1 argument")
		}
		if v, ok := e.dictGet(args[0], args[1]); ok {
			return v, nil
		}
		if len(args) > 2 {
			return args[2], nil
		}
		return e.none, nil
	})
	e.def(dict, "keys", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		keys, _ := args[0].dictItems()
		return e.List(keys...), nil
	})
	e.def(dict, "values", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		_, vals := args[0].dictItems()
		return e.List(vals...), nil
	})

	e.def(e.types["set"], "add", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("add", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		return nil, e.setAdd(args[0], args[1])
	})
}

func (e *Engine) length(o *Object) int {
	switch o.tag {
	case tag.String:
		return len([]rune(o.payload.(string)))
	case tag.Bytes:
		return len(o.payload.([]byte))
	case tag.ByteArray:
		o.mu.Lock()
		defer o.mu.Unlock()
		return len(o.payload.([]byte))
	case tag.Dict:
		keys, _ := o.dictItems()
		return len(keys)
	}
	return len(o.items())
}

// elements snapshots the members iterated by __iter__.
func (e *Engine) elements(o *Object) []*Object {
	switch o.tag {
	case tag.String:
		var out []*Object
		for _, r := range o.payload.(string) {
			out = append(out, e.Str(string(r)))
		}
		return out
	case tag.Bytes, tag.ByteArray:
		o.mu.Lock()
		b := append([]byte(nil), o.payload.([]byte)...)
		o.mu.Unlock()
		out := make([]*Object, len(b))
		for i, c := range b {
			out[i] = e.Int(int64(c))
		}
		return out
	case tag.Dict:
		keys, _ := o.dictItems()
		return keys
	}
	return o.items()
}

func (e *Engine) installExceptions() {
	base := e.NewClass("BaseException", nil, nil)
	base.payload.(*class).construct = func(ctx context.Context, cls *Object, args []*Object, _ map[string]*Object) (*Object, error) {
		msg := ""
		if len(args) > 0 {
			s, err := e.str(ctx, args[0])
			if err != nil {
				return nil, err
			}
			msg = s.payload.(string)
		}
		return e.NewException(cls, msg), nil
	}
	e.def(base, "__str__", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if ex, ok := args[0].payload.(*exception); ok {
			return e.Str(ex.message), nil
		}
		return e.Str(""), nil
	})
	e.types["BaseException"] = base

	for _, pair := range exceptionNames {
		e.types[pair[0]] = e.NewClass(pair[0], []*Object{e.types[pair[1]]}, nil)
	}
}

func (e *Engine) installBuiltinFunctions() {
	b := e.builtins
	fn := func(name string, f NativeFunc) {
		b.store(name, e.Func(name, f))
	}

	fn("isinstance", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("isinstance", args, 2); err != nil {
			return nil, e.asRaised(err)
		}
		classes := []*Object{args[1]}
		if args[1].tag == tag.Tuple {
			classes = args[1].items()
		}
		for _, c := range classes {
			if c.tag != tag.Type {
				return nil, e.Raise("TypeError", "isinstance() arg 2 must be a type or tuple of types")
			}
			if e.IsInstance(args[0], c) {
				return e.yes, nil
			}
		}
		return e.no, nil
	})
	fn("len", func(ctx context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("len", args, 1); err != nil {
			return nil, e.asRaised(err)
		}
		m, err := e.getAttr(args[0], "__len__")
		if err != nil {
			return nil, e.Raise("TypeError", "object of type '%s' has no len()", args[0].TypeName())
		}
		return e.CallObject(ctx, m, nil, nil)
	})
	fn("str", func(ctx context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) == 0 {
			return e.Str(""), nil
		}
		return e.str(ctx, args[0])
	})
	fn("repr", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("repr", args, 1); err != nil {
			return nil, e.asRaised(err)
		}
		return e.Str(Repr(args[0])), nil
	})
	fn("iter", func(ctx context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("iter", args, 1); err != nil {
			return nil, e.asRaised(err)
		}
		m, err := e.getAttr(args[0], "__iter__")
		if err != nil {
			return nil, e.Raise("TypeError", "'%s' object is not iterable", args[0].TypeName())
		}
		return e.CallObject(ctx, m, nil, nil)
	})
	fn("next", func(ctx context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("next", args, 1); err != nil {
			return nil, e.asRaised(err)
		}
		m, err := e.getAttr(args[0], "__next__")
		if err != nil {
			return nil, e.Raise("TypeError", "'%s' object is not an iterator", args[0].TypeName())
		}
		return e.CallObject(ctx, m, nil, nil)
	})
	fn("callable", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if err := arity("callable", args, 1); err != nil {
			return nil, e.asRaised(err)
		}
		return e.Bool(e.IsCallable(args[0])), nil
	})
	fn("hasattr", func(_ context.Context, args []*Object, _ map[string]*Object) (*Object, error) {
		if len(args) != 2 || args[1].tag != tag.String {
			return nil, e.Raise("TypeError", "hasattr expected an object and an attribute name")
		}
		_, ok := e.lookup(args[0], args[1].payload.(string))
		return e.Bool(ok), nil
	})
}

// str calls __str__ on o.
func (e *Engine) str(ctx context.Context, o *Object) (*Object, error) {
	if o.tag == tag.String {
		return o, nil
	}
	m, err := e.getAttr(o, "__str__")
	if err != nil {
		return e.Str(Str(o)), nil
	}
	s, err := e.CallObject(ctx, m, nil, nil)
	if err != nil {
		return nil, err
	}
	if s.tag != tag.String {
		return nil, e.Raise("TypeError", "__str__ returned non-string (type %s)", s.TypeName())
	}
	return s, nil
}
