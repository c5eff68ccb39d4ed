package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/config"
	"github.com/wippyai/guest-bridge/proxy"
	"github.com/wippyai/guest-bridge/runtime"
	"github.com/wippyai/guest-bridge/transcoder"
)

// argList collects repeated -arg flags.
type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

type options struct {
	configPath  string
	module      string
	attr        string
	call        bool
	args        argList
	async       bool
	list        bool
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to TOML config file")
	flag.StringVar(&opts.module, "module", "demo", "Guest module to open")
	flag.StringVar(&opts.attr, "attr", "", "Dotted attribute path inside the module")
	flag.BoolVar(&opts.call, "call", false, "Call the attribute")
	flag.Var(&opts.args, "arg", "Call argument (repeatable)")
	flag.BoolVar(&opts.async, "async", false, "Pass host.echo as the first argument and call asynchronously")
	flag.BoolVar(&opts.list, "list", false, "List module keys and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := runtime.New(ctx, runtime.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Finalize(context.WithoutCancel(ctx))

	if err := installDemo(rt); err != nil {
		return fmt.Errorf("install demo: %w", err)
	}

	mod, err := rt.Import(ctx, opts.module)
	if err != nil {
		return fmt.Errorf("import %s: %w", opts.module, err)
	}

	if opts.interactive {
		return runInteractive(ctx, mod, opts.module)
	}

	if opts.list || opts.attr == "" {
		fmt.Println(mod.Inspect())
		for _, k := range mod.Keys() {
			if strings.HasPrefix(k, "$") || strings.HasPrefix(k, "__") {
				continue
			}
			v, err := mod.Get(k)
			if err != nil {
				fmt.Printf("  %s: %v\n", k, err)
				continue
			}
			fmt.Printf("  %s: %s\n", k, render(v))
		}
		return nil
	}

	v, err := resolve(mod, opts.attr)
	if err != nil {
		return err
	}
	if !opts.call {
		fmt.Println(render(v))
		return nil
	}

	target, err := proxy.As(v)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.attr, err)
	}
	args := make([]any, 0, len(opts.args)+1)
	for _, a := range opts.args {
		args = append(args, parseArg(a))
	}

	fmt.Printf("Calling %s(%s)...\n", opts.attr, strings.Join(opts.args, ", "))
	result, err := call(ctx, rt, target, args, opts.async)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.attr, err)
	}
	fmt.Printf("Result: %s\n", render(result))
	return nil
}

// call invokes target. With async the host echo function is passed first
// and the result arrives through the runtime loop.
func call(ctx context.Context, rt *runtime.Runtime, target *proxy.Proxy, args []any, async bool) (any, error) {
	if !async {
		return target.Call(ctx, args...)
	}

	var (
		out    any
		outErr error
	)
	args = append([]any{guestbridge.HostFunc(echo)}, args...)
	res, err := target.Async(func(v any, err error) {
		out, outErr = v, err
	}).Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	if !guestbridge.IsUndefined(res) {
		return res, nil
	}
	if err := rt.Drain(ctx); err != nil {
		return nil, err
	}
	return out, outErr
}

// resolve walks a dotted attribute path from p.
func resolve(p *proxy.Proxy, path string) (any, error) {
	parts := strings.Split(path, ".")
	var v any = p
	for i, name := range parts {
		cur, err := proxy.As(v)
		if err != nil {
			return nil, fmt.Errorf("%s is not an object", strings.Join(parts[:i], "."))
		}
		if v, err = cur.Get(name); err != nil {
			return nil, fmt.Errorf("get %s: %w", strings.Join(parts[:i+1], "."), err)
		}
		if guestbridge.IsUndefined(v) {
			return nil, fmt.Errorf("%s not found", strings.Join(parts[:i+1], "."))
		}
	}
	return v, nil
}

// parseArg reads a command line argument as None, a bool, an int, a float
// or, failing those, a string.
func parseArg(s string) any {
	switch s {
	case "None":
		return nil
	case "True", "true":
		return true
	case "False", "false":
		return false
	}
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// render formats a host value for display.
func render(v any) string {
	return renderSeen(v, map[any]bool{})
}

func renderSeen(v any, seen map[any]bool) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case *big.Int:
		return x.String()
	case string:
		return strconv.Quote(x)
	case []byte:
		return "b" + strconv.Quote(string(x))
	case *proxy.Proxy:
		return x.Inspect()
	case guestbridge.HostFunc:
		return "<host function>"
	case *transcoder.List:
		if seen[x] {
			return "[...]"
		}
		seen[x] = true
		return "[" + renderItems(x.Items, seen) + "]"
	case *transcoder.Tuple:
		if seen[x] {
			return "(...)"
		}
		seen[x] = true
		if len(x.Items) == 1 {
			return "(" + renderSeen(x.Items[0], seen) + ",)"
		}
		return "(" + renderItems(x.Items, seen) + ")"
	case *transcoder.Set:
		if seen[x] {
			return "{...}"
		}
		seen[x] = true
		return "{" + renderItems(x.Items(), seen) + "}"
	case *transcoder.Dict:
		if seen[x] {
			return "{...}"
		}
		seen[x] = true
		entries := make([]string, 0, x.Len())
		for _, e := range x.Entries() {
			entries = append(entries, renderSeen(e.Key, seen)+": "+renderSeen(e.Value, seen))
		}
		return "{" + strings.Join(entries, ", ") + "}"
	}
	if guestbridge.IsUndefined(v) {
		return "undefined"
	}
	return fmt.Sprint(v)
}

func renderItems(items []any, seen map[any]bool) string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = renderSeen(it, seen)
	}
	return strings.Join(out, ", ")
}
