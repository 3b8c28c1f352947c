package routing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/cwbudde/algo-patch/internal/testutil"
	"github.com/cwbudde/algo-patch/synth/audiograph"
)

func TestParsePortRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PortRef
		wantErr bool
	}{
		{in: "vco.out", want: PortRef{Module: "vco", Port: "out"}},
		{in: "out.inL", want: PortRef{Module: "out", Port: "inL"}},
		{in: "vco", wantErr: true},
		{in: "vco.out.x", wantErr: true},
		{in: ".out", wantErr: true},
		{in: "vco.", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParsePortRef(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPortRef) {
				t.Errorf("ParsePortRef(%q): expected ErrInvalidPortRef, got %v", tt.in, err)
			}

			continue
		}

		if err != nil {
			t.Fatalf("ParsePortRef(%q): unexpected error: %v", tt.in, err)
		}

		if got != tt.want || got.String() != tt.in {
			t.Errorf("ParsePortRef(%q) = %+v", tt.in, got)
		}
	}
}

func TestPortRefJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[string]PortRef{"from": MustParsePortRef("seq.gate")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if string(data) != `{"from":"seq.gate"}` {
		t.Fatalf("Marshal = %s", data)
	}

	var back map[string]PortRef
	if err := json.Unmarshal([]byte(`{"to":"env.gate"}`), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if back["to"] != (PortRef{Module: "env", Port: "gate"}) {
		t.Fatalf("Unmarshal = %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"to":"bad"}`), &back); !errors.Is(err, ErrInvalidPortRef) {
		t.Fatalf("expected ErrInvalidPortRef, got %v", err)
	}
}

func TestAttachInterposesAdapters(t *testing.T) {
	t.Parallel()

	pc := audiograph.NewContext(48000)

	seq, err := Attach(pc, constant(0.1, 0.9))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ep, err := seq.Output(1)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}

	if _, ok := ep.Node.(*audiograph.Splitter); !ok || ep.Port != 1 {
		t.Fatalf("Output(1) = %T:%d, want splitter:1", ep.Node, ep.Port)
	}

	vcf, err := Attach(pc, sink(2))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ep, _ = vcf.Input(1)
	if _, ok := ep.Node.(*audiograph.Merger); !ok || ep.Port != 1 {
		t.Fatalf("Input(1) = %T:%d, want merger:1", ep.Node, ep.Port)
	}

	vcoNode := constant(0.5)

	vco, err := Attach(pc, vcoNode)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if ep, _ := vco.Output(0); ep.Node != vcoNode || ep.Port != 0 {
		t.Fatalf("mono output resolved to %T:%d", ep.Node, ep.Port)
	}

	if _, err := vco.Output(1); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}

	vco.Detach()

	if pc.Contains(vcoNode) || !vcoNode.disposed {
		t.Fatal("Detach left the node attached or undisposed")
	}
}

func TestRouterConnectAndDisconnect(t *testing.T) {
	t.Parallel()

	pc := audiograph.NewContext(48000)
	live := liveSet{}

	for id, node := range map[string]*stubNode{"seq": constant(0.1, 0.9), "out": passThrough(2)} {
		att, err := Attach(pc, node)
		if err != nil {
			t.Fatalf("Attach(%s): %v", id, err)
		}

		live[id] = att
	}

	tap, err := SetupOutput(pc, live["out"], audiograph.DefaultAnalyserSize)
	if err != nil {
		t.Fatalf("SetupOutput: %v", err)
	}

	r := NewRouter(pc)
	from, to := MustParsePortRef("seq.gate"), MustParsePortRef("out.inL")

	if res := r.Connect(from, to, live.resolve); !res.OK() {
		t.Fatalf("Connect: %v", res.Err)
	}

	out := audiograph.NewBus(2, 64)
	pc.Render(out)

	if out[0][0] != 0.9 || out[1][0] != 0 {
		t.Fatalf("rendered (%v, %v), want (0.9, 0)", out[0][0], out[1][0])
	}

	td := make([]float64, 4)
	tap.Analyser().TimeDomain(td)

	if td[3] != 0.9 {
		t.Fatalf("analyser sample = %v, want 0.9", td[3])
	}

	if res := r.Disconnect(from, to, live.resolve); !res.OK() {
		t.Fatalf("Disconnect: %v", res.Err)
	}

	pc.Render(out)

	if out[0][0] != 0 {
		t.Fatalf("route still live after disconnect: %v", out[0][0])
	}
}

func TestRouterReportsFailures(t *testing.T) {
	t.Parallel()

	logger, logs := testutil.CaptureLogger(slog.LevelDebug)

	var results []Result

	pc := audiograph.NewContext(48000)
	r := NewRouter(pc, WithLogger(logger), WithReporter(func(res Result) { results = append(results, res) }))

	vco, _ := Attach(pc, constant(0.5))
	env, _ := Attach(pc, sink(1))
	live := liveSet{"vco": vco, "env": env}

	tests := []struct {
		name     string
		op       func() Result
		want     error
		logLevel string
	}{
		{
			name:     "destination not live",
			op:       func() Result { return r.Connect(MustParsePortRef("vco.out"), MustParsePortRef("vcf.in"), live.resolve) },
			want:     ErrUnresolved,
			logLevel: "level=DEBUG",
		},
		{
			name:     "unknown port",
			op:       func() Result { return r.Connect(MustParsePortRef("vco.nope"), MustParsePortRef("env.gate"), live.resolve) },
			want:     ErrUnresolved,
			logLevel: "level=DEBUG",
		},
		{
			name:     "disconnect absent route",
			op:       func() Result { return r.Disconnect(MustParsePortRef("vco.out"), MustParsePortRef("env.gate"), live.resolve) },
			want:     audiograph.ErrNotConnected,
			logLevel: "level=DEBUG",
		},
	}

	for _, tt := range tests {
		res := tt.op()
		if !errors.Is(res.Err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, res.Err)
		}
	}

	if len(results) != len(tests) {
		t.Fatalf("reported %d results, want %d", len(results), len(tests))
	}

	if !logs.Contains("routing failed") || !logs.Contains("level=DEBUG") {
		t.Fatalf("missing debug log: %q", logs.String())
	}

	pc.Close()

	res := r.Connect(MustParsePortRef("vco.out"), MustParsePortRef("env.gate"), live.resolve)
	if !errors.Is(res.Err, audiograph.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", res.Err)
	}

	if !logs.Contains("level=WARN") {
		t.Fatalf("closed-context failure not logged at warn: %q", logs.String())
	}
}

func TestSetupOutputMonoFallback(t *testing.T) {
	t.Parallel()

	pc := audiograph.NewContext(48000)

	att, err := Attach(pc, constant(0.25))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	tap, err := SetupOutput(pc, att, 256)
	if err != nil {
		t.Fatalf("SetupOutput: %v", err)
	}

	out := audiograph.NewBus(2, 256)
	pc.Render(out)

	if out[0][10] != 0.25 || out[1][10] != 0.25 {
		t.Fatalf("mono fallback rendered (%v, %v)", out[0][10], out[1][10])
	}

	if tap.Analyser() == nil || tap.Analyser().Size() != 256 {
		t.Fatal("missing analyser")
	}

	analyser := tap.Analyser()
	tap.Teardown()

	if tap.Analyser() != nil || pc.Contains(analyser) {
		t.Fatal("analyser survived Teardown")
	}

	pc.Render(out)

	if out[0][10] != 0 {
		t.Fatalf("destination still fed after Teardown: %v", out[0][10])
	}
}

func TestSetupOutputStereoTeardown(t *testing.T) {
	t.Parallel()

	pc := audiograph.NewContext(48000)

	att, err := Attach(pc, constant(0.2, -0.2))
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	tap, err := SetupOutput(pc, att, 256)
	if err != nil {
		t.Fatalf("SetupOutput: %v", err)
	}

	out := audiograph.NewBus(2, 128)
	pc.Render(out)

	if out[0][0] != 0.2 || out[1][0] != -0.2 {
		t.Fatalf("stereo rendered (%v, %v)", out[0][0], out[1][0])
	}

	tap.Teardown()
	pc.Render(out)

	if out[0][0] != 0 || out[1][0] != 0 {
		t.Fatal("destination still fed after Teardown")
	}
}

func TestSetupOutputRejectsSilentModule(t *testing.T) {
	t.Parallel()

	pc := audiograph.NewContext(48000)
	att, _ := Attach(pc, sink(2))
	att.channels.Outputs = 0

	if _, err := SetupOutput(pc, att, 256); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}
