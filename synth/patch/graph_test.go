package patch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/cwbudde/algo-patch/internal/testutil"
	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/modules"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

func TestNewStartsWithDefaults(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())

	if len(g.Connections()) != 0 {
		t.Fatalf("new graph has cables: %v", g.Connections())
	}

	if g.Running() || g.Analyser() != nil {
		t.Fatal("new graph should be stopped")
	}

	for _, def := range registry.Default().Defs() {
		params, ok := g.Params(def.ID)
		if !ok {
			t.Fatalf("missing module %q", def.ID)
		}

		if !reflect.DeepEqual(params, def.Defaults()) {
			t.Fatalf("%s params = %v, want defaults", def.ID, params)
		}

		if pos, _ := g.Position(def.ID); pos != def.Position {
			t.Fatalf("%s position = %+v, want %+v", def.ID, pos, def.Position)
		}
	}
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())

	tests := []struct {
		name     string
		from, to string
		want     error
	}{
		{name: "unknown source module", from: "osc.out", to: "vcf.in", want: ErrUnknownModule},
		{name: "unknown destination module", from: "vco.out", to: "fx.in", want: ErrUnknownModule},
		{name: "input used as output", from: "vcf.in", to: "vca.in", want: ErrUnknownPort},
		{name: "output used as input", from: "vco.out", to: "vcf.out", want: ErrUnknownPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.Connect(ref(tt.from), ref(tt.to)); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if len(g.Connections()) != 0 {
		t.Fatalf("rejected cables were stored: %v", g.Connections())
	}
}

func TestConnectReplacesCableIntoSameInput(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())

	for _, c := range [][2]string{{"vco.out", "vcf.in"}, {"noise.out", "vcf.in"}, {"lfo.out", "vcf.cutoffCv"}} {
		if err := g.Connect(ref(c[0]), ref(c[1])); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}

	want := []Cable{
		{From: ref("noise.out"), To: ref("vcf.in")},
		{From: ref("lfo.out"), To: ref("vcf.cutoffCv")},
	}
	if got := g.Connections(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Connections = %v, want %v", got, want)
	}

	// One output may feed any number of inputs.
	_ = g.Connect(ref("vca.out"), ref("out.inL"))
	_ = g.Connect(ref("vca.out"), ref("out.inR"))

	g.Disconnect(ref("vco.out"), ref("vcf.in"))

	if len(g.Connections()) != 4 {
		t.Fatalf("absent cable removal changed the list: %v", g.Connections())
	}

	g.DisconnectAllInto(ref("vcf.in"))
	g.Disconnect(ref("vca.out"), ref("out.inR"))

	want = []Cable{
		{From: ref("lfo.out"), To: ref("vcf.cutoffCv")},
		{From: ref("vca.out"), To: ref("out.inL")},
	}
	if got := g.Connections(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Connections = %v, want %v", got, want)
	}
}

func TestSetConnections(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())
	g.Reset()

	bad := append(DefaultCables(), Cable{From: ref("vco.nope"), To: ref("vcf.in")})
	if err := g.SetConnections(bad); !errors.Is(err, ErrUnknownPort) {
		t.Fatalf("expected ErrUnknownPort, got %v", err)
	}

	if !reflect.DeepEqual(g.Connections(), DefaultCables()) {
		t.Fatal("failed SetConnections modified the cable list")
	}

	err := g.SetConnections([]Cable{
		{From: ref("vco.out"), To: ref("out.inL")},
		{From: ref("noise.out"), To: ref("out.inL")},
	})
	if err != nil {
		t.Fatalf("SetConnections: %v", err)
	}

	want := []Cable{{From: ref("noise.out"), To: ref("out.inL")}}
	if got := g.Connections(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Connections = %v, want %v", got, want)
	}
}

func TestParameters(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())

	if err := g.SetParameter("vco", "coarse", 60); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	if v, ok := g.GetParameter("vco", "coarse"); !ok || v != 60 {
		t.Fatalf("GetParameter = %v, %v", v, ok)
	}

	if err := g.SetParameter("vco", "custom", 3); err != nil {
		t.Fatalf("unknown parameter names are stored: %v", err)
	}

	if _, ok := g.GetParameter("vco", "missing"); ok {
		t.Fatal("missing parameter reported as present")
	}

	if err := g.SetParameter("osc", "coarse", 1); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		if err := g.SetParameter("vco", "coarse", v); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("SetParameter(%v): expected ErrInvalidValue, got %v", v, err)
		}
	}

	startGraph(t, g)

	if got := liveValue(t, g, "vco", "coarse"); got != 60 {
		t.Fatalf("stored value not applied on start: %v", got)
	}

	if err := g.SetParameter("seq", "step3", 55); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	if got := liveValue(t, g, "seq", "step3"); got != 55 {
		t.Fatalf("live seq step3 = %v, want 55", got)
	}

	if err := g.SetParameter("out", "volume", 0.25); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	if got := liveValue(t, g, "out", "volume"); got != 0.25 {
		t.Fatalf("live out volume = %v, want 0.25", got)
	}

	// Out-of-range values are stored as given and clamped by the node.
	if err := g.SetParameter("vco", "coarse", 200); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	if v, _ := g.GetParameter("vco", "coarse"); v != 200 {
		t.Fatalf("stored value = %v, want 200", v)
	}

	if got := liveValue(t, g, "vco", "coarse"); got != 72 {
		t.Fatalf("live value = %v, want clamped 72", got)
	}
}

func TestStartRendersDefaultPatch(t *testing.T) {
	t.Parallel()

	var ready int

	g := newGraph(t, modules.NewSource())
	g.Reset()
	g.OnReady(func() { ready++ })

	out := audiograph.NewBus(2, 64)
	if g.Render(out) {
		t.Fatal("stopped graph reported rendering")
	}

	startGraph(t, g)
	startGraph(t, g)

	if ready != 1 {
		t.Fatalf("OnReady ran %d times, want 1", ready)
	}

	for _, c := range DefaultCables() {
		if !routed(g, c) {
			t.Fatalf("cable %s not routed", c)
		}
	}

	buf := renderFrames(g, 4800)
	testutil.RequireFinite(t, buf...)

	if rms := testutil.RMS(buf[0]); rms < 0.01 {
		t.Fatalf("left RMS = %v, want audible output", rms)
	}

	if d := testutil.PeakDiff(buf[0], buf[1]); d != 0 {
		t.Fatalf("left and right differ by %v", d)
	}

	analyser := g.Analyser()
	if analyser == nil || analyser.Size() != audiograph.DefaultAnalyserSize {
		t.Fatal("missing analysis tap")
	}

	td := make([]float64, analyser.Size())
	analyser.TimeDomain(td)

	if testutil.RMS(td) == 0 {
		t.Fatal("analysis tap is silent")
	}

	g.Stop()

	if g.Running() || g.Analyser() != nil || g.Live("vco") {
		t.Fatal("Stop left live state behind")
	}

	if g.Render(out) || out[0][0] != 0 {
		t.Fatal("stopped graph rendered audio")
	}

	if !reflect.DeepEqual(g.Connections(), DefaultCables()) {
		t.Fatal("Stop dropped cables")
	}

	g.Stop()
	startGraph(t, g)

	if ready != 2 {
		t.Fatalf("OnReady ran %d times, want 2", ready)
	}

	if testutil.RMS(renderFrames(g, 4800)[0]) < 0.01 {
		t.Fatal("restart did not restore the patch")
	}
}

func TestLiveRewiring(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())
	startGraph(t, g)

	noise := Cable{From: ref("noise.out"), To: ref("out.inL")}
	vco := Cable{From: ref("vco.out"), To: ref("out.inL")}

	if err := g.Connect(noise.From, noise.To); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	buf := renderFrames(g, 2048)
	if testutil.RMS(buf[0]) == 0 || testutil.RMS(buf[1]) != 0 {
		t.Fatal("noise should reach the left channel only")
	}

	if err := g.Connect(vco.From, vco.To); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if routed(g, noise) || !routed(g, vco) {
		t.Fatal("replacement left the old route live")
	}

	g.DisconnectAllInto(ref("out.inL"))

	if routed(g, vco) {
		t.Fatal("DisconnectAllInto left the route live")
	}

	renderFrames(g, 512)

	if testutil.RMS(renderFrames(g, 2048)[0]) != 0 {
		t.Fatal("output not silent after disconnecting everything")
	}
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())
	g.Reset()

	_ = g.SetParameter("vcf", "cutoff", 440)
	_ = g.SetParameter("seq", "gate4", 1)
	_ = g.SetPosition("lfo", registry.Position{X: 12, Y: 34})
	_ = g.Connect(ref("lfo.out"), ref("vcf.cutoffCv"))

	snap := g.Snapshot()

	// Mutating the snapshot must not reach the graph.
	snap.Modules["vcf"].Params["cutoff"] = 1
	if v, _ := g.GetParameter("vcf", "cutoff"); v != 440 {
		t.Fatal("Snapshot shares parameter maps with the graph")
	}

	snap.Modules["vcf"].Params["cutoff"] = 440

	fresh := newGraph(t, modules.NewSource())
	if err := fresh.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if !reflect.DeepEqual(fresh.Snapshot(), snap) {
		t.Fatal("restored snapshot differs")
	}

	startGraph(t, fresh)

	if got := liveValue(t, fresh, "vcf", "cutoff"); got != 440 {
		t.Fatalf("restored cutoff not live: %v", got)
	}

	if !routed(fresh, Cable{From: ref("lfo.out"), To: ref("vcf.cutoffCv")}) {
		t.Fatal("restored cable not routed")
	}
}

func TestRestoreOverlaysDefaults(t *testing.T) {
	t.Parallel()

	logger, logs := testutil.CaptureLogger(slog.LevelWarn)
	g := newGraph(t, modules.NewSource(), WithLogger(logger))

	_ = g.SetParameter("lfo", "rate", 7)
	startGraph(t, g)
	_ = g.Connect(ref("vco.out"), ref("out.inL"))

	err := g.Restore(Snapshot{
		Modules: map[string]ModuleState{
			"vco":   {Position: registry.Position{X: 1, Y: 2}, Params: map[string]float64{"coarse": 36}},
			"ghost": {Params: map[string]float64{"x": 1}},
		},
		Cables: []Cable{
			{From: ref("noise.out"), To: ref("out.inR")},
			{From: ref("ghost.out"), To: ref("out.inL")},
		},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if v, _ := g.GetParameter("vco", "fine"); v != 0 {
		t.Fatalf("missing parameter not reset to default: %v", v)
	}

	if v, _ := g.GetParameter("lfo", "rate"); v != 1 {
		t.Fatalf("module absent from snapshot not reset: %v", v)
	}

	if got := liveValue(t, g, "vco", "coarse"); got != 36 {
		t.Fatalf("restored value not pushed live: %v", got)
	}

	want := []Cable{{From: ref("noise.out"), To: ref("out.inR")}}
	if !reflect.DeepEqual(g.Connections(), want) {
		t.Fatalf("Connections = %v, want %v", g.Connections(), want)
	}

	if routed(g, Cable{From: ref("vco.out"), To: ref("out.inL")}) || !routed(g, want[0]) {
		t.Fatal("live routes do not match restored cables")
	}

	if !logs.Contains("snapshot module ignored") || !logs.Contains("snapshot cable ignored") {
		t.Fatalf("dropped entries not logged: %q", logs.String())
	}

	err = g.Restore(Snapshot{Modules: map[string]ModuleState{"vco": {Params: map[string]float64{"coarse": math.NaN()}}}})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}

	if v, _ := g.GetParameter("vco", "coarse"); v != 36 {
		t.Fatal("rejected snapshot was partially applied")
	}
}

func TestLoadFailureIsIsolated(t *testing.T) {
	t.Parallel()

	logger, logs := testutil.CaptureLogger(slog.LevelWarn)
	src := newFaultySource()
	src.fail["noise"] = errors.New("boom")

	var results []routing.Result

	g := newGraph(t, src, WithLogger(logger), WithRoutingReporter(func(r routing.Result) { results = append(results, r) }))
	_ = g.Connect(ref("noise.out"), ref("mix.in1"))
	_ = g.Connect(ref("vco.out"), ref("out.inL"))

	startGraph(t, g)

	if g.Live("noise") || !g.Live("vco") || !g.Live("out") {
		t.Fatal("a failed load should only silence its own module")
	}

	if !logs.Contains("module load failed") || !logs.Contains("module=noise") {
		t.Fatalf("load failure not logged: %q", logs.String())
	}

	if len(results) != 2 {
		t.Fatalf("got %d routing results, want 2", len(results))
	}

	for _, r := range results {
		if r.From.Module == "noise" {
			if !errors.Is(r.Err, routing.ErrUnresolved) {
				t.Fatalf("cable from failed module: %v", r.Err)
			}

			continue
		}

		if !r.OK() {
			t.Fatalf("healthy cable failed: %v", r.Err)
		}
	}

	// Parameters of a silent module are still stored.
	if err := g.SetParameter("noise", "color", 0.1); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
}

func TestLoadTimeoutAbandonsStalledModule(t *testing.T) {
	t.Parallel()

	src := newFaultySource()
	release := make(chan struct{})
	src.stall["rev"] = release

	g := newGraph(t, src, WithLoadTimeout(50*time.Millisecond))

	begin := time.Now()
	startGraph(t, g)

	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("Start took %v", elapsed)
	}

	if !g.Running() || g.Live("rev") || !g.Live("dly") {
		t.Fatal("stalled module should be skipped while the rest runs")
	}

	close(release)

	late := <-src.loaded
	waitFor(t, "late module disposal", late.disposed.Load)

	if g.Live("rev") {
		t.Fatal("late module was attached")
	}
}

func TestStopDuringStart(t *testing.T) {
	t.Parallel()

	src := newFaultySource()
	release := make(chan struct{})
	src.stall["vco"] = release

	g := newGraph(t, src)
	done := make(chan error, 1)

	go func() { done <- g.Start(context.Background()) }()

	<-src.entered
	g.Stop()
	close(release)

	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}

	late := <-src.loaded
	waitFor(t, "late module disposal", late.disposed.Load)

	if g.Running() || g.Live("vco") || g.Live("out") {
		t.Fatal("graph came up after Stop")
	}

	startGraph(t, g)

	if !g.Live("out") {
		t.Fatal("Start after an aborted start failed to bring the graph up")
	}
}

func TestStartCanceled(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if g.Running() {
		t.Fatal("canceled Start left the graph running")
	}

	startGraph(t, g)
}

func TestStepHook(t *testing.T) {
	t.Parallel()

	g := newGraph(t, modules.NewSource())
	_ = g.Connect(ref("clk.clock"), ref("seq.clock"))

	var steps []int

	g.OnStep(func(step int) { steps = append(steps, step) })
	startGraph(t, g)

	// Four sixteenths at 120 BPM.
	renderFrames(g, 24000)

	if len(steps) < 3 {
		t.Fatalf("got steps %v, want at least 3", steps)
	}

	for i, s := range steps {
		if s < 0 || s >= 8 {
			t.Fatalf("step %d out of range: %d", i, s)
		}

		if i > 0 && s != (steps[i-1]+1)%8 {
			t.Fatalf("steps not consecutive: %v", steps)
		}
	}

	g.Stop()

	n := len(steps)
	renderFrames(g, 6000)

	if len(steps) != n {
		t.Fatal("step hook fired while stopped")
	}
}
