package command

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TensoriumAi/Glyde/internal/ipc"
)

// Options configures a dispatcher.
type Options struct {
	// ScreenshotsDir is where relative screenshot filenames land.
	ScreenshotsDir string
	// ChatTimeout bounds the wait for a chat bridge reply. Handler-local
	// policy, not a server guarantee.
	ChatTimeout time.Duration
	// Audit records dispatched commands. May be nil.
	Audit *Audit
}

// DefaultChatTimeout is used when Options.ChatTimeout is zero.
const DefaultChatTimeout = 30 * time.Second

type handler struct {
	summary string
	run     func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Dispatcher owns the fixed command table bound against one Capability.
type Dispatcher struct {
	caps  Capability
	opts  Options
	table map[string]handler
}

// NewDispatcher builds the command table.
func NewDispatcher(caps Capability, opts Options) *Dispatcher {
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultChatTimeout
	}
	d := &Dispatcher{caps: caps, opts: opts}
	d.table = map[string]handler{
		"help":       {"list available commands", d.help},
		"eval":       {"evaluate script text in the page, returning its value", d.eval},
		"inject":     {"alias of eval", d.eval},
		"screenshot": {"capture the page to an optional filename", d.screenshot},
		"click":      {"click the element matching a selector", d.click},
		"type":       {"type text into the element matching a selector", d.typeText},
		"url":        {"return the current page URL", d.url},
		"reload":     {"reload the page", d.reload},
		"chat":       {"send a message through the page's chat bridge", d.chat},
		"label":      {"overlay numbered labels on matching elements", d.label},
	}
	return d
}

// Handle implements ipc.Handler. Unknown commands and handler errors become
// error responses; nothing escapes this boundary.
func (d *Dispatcher) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	h, ok := d.table[req.Command]
	if !ok {
		d.opts.Audit.Record(req.Command, false, "Unknown command", 0)
		return ipc.Fail("Unknown command")
	}

	start := time.Now()
	result, err := h.run(ctx, req.Args)
	dur := time.Since(start)
	if err != nil {
		d.opts.Audit.Record(req.Command, false, err.Error(), dur)
		return ipc.Fail("%s", err.Error())
	}
	d.opts.Audit.Record(req.Command, true, "", dur)
	return ipc.OK(result)
}

// jsString renders s as a JavaScript string literal. JSON string encoding is
// valid JS source for every input.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func stringArg(args json.RawMessage, what string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s required", what)
	}
	var s string
	if err := json.Unmarshal(args, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", what)
	}
	if s == "" {
		return "", fmt.Errorf("%s required", what)
	}
	return s, nil
}

func (d *Dispatcher) help(context.Context, json.RawMessage) (interface{}, error) {
	names := make([]string, 0, len(d.table))
	for name := range d.table {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-11s %s\n", name, d.table[name].summary)
	}
	return b.String(), nil
}

// eval runs user script text. Errors thrown inside the evaluated code are
// caught in-page and returned as string results, not protocol errors; only
// harness failures (page gone, evaluation transport broken) reach the error
// channel. This asymmetry is deliberate.
func (d *Dispatcher) eval(ctx context.Context, args json.RawMessage) (interface{}, error) {
	src, err := stringArg(args, "script")
	if err != nil {
		return nil, err
	}
	guarded := fmt.Sprintf("try { (0, eval)(%s) } catch (e) { String(e) }", jsString(src))
	return d.caps.Evaluate(ctx, guarded)
}

func (d *Dispatcher) screenshot(ctx context.Context, args json.RawMessage) (interface{}, error) {
	name := ""
	if len(args) > 0 {
		if err := json.Unmarshal(args, &name); err != nil {
			return nil, fmt.Errorf("filename must be a string")
		}
	}
	if name == "" {
		name = fmt.Sprintf("screenshot-%s.png", time.Now().Format("20060102-150405"))
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(d.opts.ScreenshotsDir, name)
	}
	return d.caps.Screenshot(ctx, name)
}

func (d *Dispatcher) click(ctx context.Context, args json.RawMessage) (interface{}, error) {
	selector, err := stringArg(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := d.caps.Click(ctx, selector); err != nil {
		return nil, err
	}
	return fmt.Sprintf("clicked %s", selector), nil
}

type typeArgs struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

func (d *Dispatcher) typeText(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a typeArgs
	if len(args) == 0 {
		return nil, fmt.Errorf("selector and text required")
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("type args must be {selector, text}")
	}
	if a.Selector == "" {
		return nil, fmt.Errorf("selector required")
	}
	if err := d.caps.Type(ctx, a.Selector, a.Text); err != nil {
		return nil, err
	}
	return fmt.Sprintf("typed into %s", a.Selector), nil
}

func (d *Dispatcher) url(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return d.caps.CurrentURL(ctx)
}

func (d *Dispatcher) reload(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if err := d.caps.Reload(ctx); err != nil {
		return nil, err
	}
	return "reloaded", nil
}

// chat talks to the page-installed bridge at window.__glyde.chat, typically
// registered by a manifest injection script. Absence of the bridge is a
// protocol error; the reply wait is bounded by Options.ChatTimeout.
func (d *Dispatcher) chat(ctx context.Context, args json.RawMessage) (interface{}, error) {
	message, err := stringArg(args, "message")
	if err != nil {
		return nil, err
	}
	timeoutMs := d.opts.ChatTimeout.Milliseconds()
	script := fmt.Sprintf(`(async () => {
	const bridge = window.__glyde && window.__glyde.chat;
	if (!bridge || typeof bridge.send !== 'function') {
		throw new Error('chat bridge not installed on this page');
	}
	const timeout = new Promise((_, reject) =>
		setTimeout(() => reject(new Error('chat reply timed out after %dms')), %d));
	return await Promise.race([Promise.resolve(bridge.send(%s)), timeout]);
})()`, timeoutMs, timeoutMs, jsString(message))
	return d.caps.Evaluate(ctx, script)
}

type labelArgs struct {
	Selector  string `json:"selector"`
	Number    bool   `json:"number"`
	Coords    bool   `json:"coords"`
	Color     string `json:"color"`
	Size      int    `json:"size"`
	Nocleanup bool   `json:"nocleanup"`
}

// label overlays numbered badges on every element matching the selector and
// returns the count. Zero matches is a valid result, not an error.
func (d *Dispatcher) label(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a labelArgs
	if len(args) == 0 {
		return nil, fmt.Errorf("selector required")
	}
	if err := json.Unmarshal(args, &a); err != nil {
		// Bare string form: label everything matching that selector.
		var selector string
		if err2 := json.Unmarshal(args, &selector); err2 != nil {
			return nil, fmt.Errorf("label args must be a selector or {selector, ...options}")
		}
		a.Selector = selector
		a.Number = true
	}
	if a.Selector == "" {
		return nil, fmt.Errorf("selector required")
	}
	if a.Color == "" {
		a.Color = "#ff3b30"
	}
	// The color lands inside a JS string literal; keep it inert.
	a.Color = strings.Map(func(r rune) rune {
		if r == '\'' || r == '"' || r == '\\' || r == ';' {
			return -1
		}
		return r
	}, a.Color)
	if a.Size <= 0 {
		a.Size = 12
	}

	script := fmt.Sprintf(`(() => {
	const els = Array.from(document.querySelectorAll(%s));
	const layerId = '__glyde_labels';
	const prev = document.getElementById(layerId);
	if (prev) prev.remove();
	if (els.length === 0) return 0;
	const layer = document.createElement('div');
	layer.id = layerId;
	layer.style.cssText = 'position:fixed;inset:0;pointer-events:none;z-index:2147483647;';
	els.forEach((el, i) => {
		const rect = el.getBoundingClientRect();
		const badge = document.createElement('div');
		const parts = [];
		if (%t) parts.push(String(i + 1));
		if (%t) parts.push(Math.round(rect.x) + ',' + Math.round(rect.y));
		badge.textContent = parts.join(' ');
		badge.style.cssText = 'position:absolute;left:' + rect.x + 'px;top:' + rect.y +
			'px;background:%s;color:#fff;font:%dpx monospace;padding:1px 4px;border-radius:3px;';
		layer.appendChild(badge);
	});
	document.body.appendChild(layer);
	if (!%t) setTimeout(() => layer.remove(), 10000);
	return els.length;
})()`, jsString(a.Selector), a.Number, a.Coords, a.Color, a.Size, a.Nocleanup)

	return d.caps.Evaluate(ctx, script)
}
