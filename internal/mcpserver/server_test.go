package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/modules"
	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/state"
)

func newServer(t *testing.T) (*Server, *patch.Graph) {
	t.Helper()

	g := patch.New(registry.Default(), loader.New(modules.NewSource()))
	t.Cleanup(g.Stop)

	return New(g, state.NewStore(state.NewMemoryBackend()), "test"), g
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}

	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}

	return text.Text, res.IsError
}

func TestParamTools(t *testing.T) {
	t.Parallel()

	s, g := newServer(t)

	if text, isErr := call(t, s.setParam, map[string]any{"module": "vcf", "param": "cutoff", "value": "880"}); isErr {
		t.Fatalf("set-param failed: %s", text)
	}

	if v, _ := g.GetParameter("vcf", "cutoff"); v != 880 {
		t.Fatalf("cutoff = %v, want 880", v)
	}

	text, isErr := call(t, s.getParam, map[string]any{"module": "vcf", "param": "cutoff"})
	if isErr || text != "880" {
		t.Fatalf("get-param = %q (error %v)", text, isErr)
	}

	tests := []struct {
		name string
		h    server.ToolHandlerFunc
		args map[string]any
	}{
		{name: "missing module", h: s.getParam, args: map[string]any{"param": "cutoff"}},
		{name: "unknown param", h: s.getParam, args: map[string]any{"module": "vcf", "param": "nope"}},
		{name: "bad value", h: s.setParam, args: map[string]any{"module": "vcf", "param": "cutoff", "value": "loud"}},
		{name: "unknown module", h: s.setParam, args: map[string]any{"module": "osc", "param": "x", "value": 1}},
	}

	for _, tt := range tests {
		if text, isErr := call(t, tt.h, tt.args); !isErr {
			t.Errorf("%s: expected tool error, got %q", tt.name, text)
		}
	}
}

func TestCableTools(t *testing.T) {
	t.Parallel()

	s, g := newServer(t)

	for _, from := range []string{"vco.out", "noise.out"} {
		if text, isErr := call(t, s.connect, map[string]any{"from": from, "to": "vcf.in"}); isErr {
			t.Fatalf("connect failed: %s", text)
		}
	}

	text, _ := call(t, s.listCables, nil)
	if text != "noise.out -> vcf.in" {
		t.Fatalf("list-cables = %q", text)
	}

	if _, isErr := call(t, s.connect, map[string]any{"from": "vco", "to": "vcf.in"}); !isErr {
		t.Fatal("malformed port accepted")
	}

	_ = g.Connect(patch.DefaultCables()[5].From, patch.DefaultCables()[5].To)

	call(t, s.disconnect, map[string]any{"to": "vcf.in"})
	call(t, s.disconnect, map[string]any{"from": "vca.out", "to": "out.inL"})

	if len(g.Connections()) != 0 {
		t.Fatalf("cables left: %v", g.Connections())
	}
}

func TestShareOpenAndSlots(t *testing.T) {
	t.Parallel()

	s, g := newServer(t)
	g.Reset()
	_ = g.SetParameter("lfo", "rate", 4)

	token, isErr := call(t, s.share, nil)
	if isErr || !strings.HasPrefix(token, state.CompactPrefix) {
		t.Fatalf("share = %q", token)
	}

	if text, isErr := call(t, s.save, map[string]any{"name": "wobble"}); isErr {
		t.Fatalf("save failed: %s", text)
	}

	_ = g.SetConnections(nil)
	_ = g.SetParameter("lfo", "rate", 1)

	if text, isErr := call(t, s.open, map[string]any{"token": token}); isErr {
		t.Fatalf("open failed: %s", text)
	}

	if v, _ := g.GetParameter("lfo", "rate"); v != 4 || len(g.Connections()) != len(patch.DefaultCables()) {
		t.Fatal("open did not restore the shared patch")
	}

	_ = g.SetConnections(nil)

	if text, isErr := call(t, s.load, map[string]any{"name": "wobble"}); isErr {
		t.Fatalf("load failed: %s", text)
	}

	if len(g.Connections()) != len(patch.DefaultCables()) {
		t.Fatal("load did not restore the slot")
	}

	text, _ := call(t, s.listSlots, nil)

	var names []string
	if err := json.Unmarshal([]byte(text), &names); err != nil || len(names) != 1 || names[0] != "wobble" {
		t.Fatalf("list-slots = %q (%v)", text, err)
	}

	if _, isErr := call(t, s.open, map[string]any{"token": "z1.garbage"}); !isErr {
		t.Fatal("corrupt token accepted")
	}

	if _, isErr := call(t, s.load, map[string]any{"name": "missing"}); !isErr {
		t.Fatal("missing slot loaded")
	}
}

func TestLifecycleTools(t *testing.T) {
	t.Parallel()

	s, g := newServer(t)

	if text, isErr := call(t, s.start, nil); isErr || !g.Running() {
		t.Fatalf("start = %q", text)
	}

	text, _ := call(t, s.listModules, nil)

	var mods []moduleInfo
	if err := json.Unmarshal([]byte(text), &mods); err != nil {
		t.Fatalf("list-modules: %v", err)
	}

	if len(mods) != len(registry.Default().Types()) || !mods[0].Live {
		t.Fatalf("list-modules returned %d modules", len(mods))
	}

	if _, isErr := call(t, s.stop, nil); isErr || g.Running() {
		t.Fatal("stop failed")
	}
}
