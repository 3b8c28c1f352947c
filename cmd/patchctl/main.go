// Command patchctl drives the modular patch engine from the command line.
//
// Usage:
//
//	patchctl [-config file] <command> [flags] [args]
//
// Commands:
//
//	modules            list module types, ports and parameters
//	render  [-o file]  render the patch to a WAV file
//	play               play the patch on the default audio device
//	midi               play and map MIDI controllers onto parameters
//	mcp                serve the patch tools over MCP on stdio
//	slots              list saved patch slots
//	share              print a share token for a patch
//	open    <token>    decode a share token and print the patch as JSON
//
// Examples:
//
//	patchctl modules
//	patchctl render -seconds 8 -o demo.wav
//	patchctl play -slot bassline
//	patchctl midi -port "nanoKONTROL"
//	patchctl -config ./patch.yaml mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cwbudde/algo-patch/internal/config"
	"github.com/cwbudde/algo-patch/internal/mcpserver"
	"github.com/cwbudde/algo-patch/internal/midictl"
	"github.com/cwbudde/algo-patch/internal/playback"
	"github.com/cwbudde/algo-patch/internal/render"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/modules"
	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/state"
)

const version = "0.1.0"

type app struct {
	cfg    config.Config
	logger *slog.Logger
	reg    *registry.Registry
	store  *state.Store
}

func main() {
	cfgPath := flag.String("config", "", "config file (default "+config.DefaultPath+")")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	a, err := newApp(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, args := flag.Arg(0), flag.Args()[1:]

	var run func(context.Context, []string) error

	switch cmd {
	case "modules":
		run = a.modules
	case "render":
		run = a.render
	case "play":
		run = a.play
	case "midi":
		run = a.midi
	case "mcp":
		run = a.mcp
	case "slots":
		run = a.slots
	case "share":
		run = a.share
	case "open":
		run = a.open
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err := run(ctx, args); err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: patchctl [-config file] <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  modules   list module types\n")
	fmt.Fprintf(os.Stderr, "  render    render the patch to a WAV file\n")
	fmt.Fprintf(os.Stderr, "  play      play the patch on the default audio device\n")
	fmt.Fprintf(os.Stderr, "  midi      play with MIDI controller mapping\n")
	fmt.Fprintf(os.Stderr, "  mcp       serve patch tools over MCP on stdio\n")
	fmt.Fprintf(os.Stderr, "  slots     list saved patch slots\n")
	fmt.Fprintf(os.Stderr, "  share     print a share token\n")
	fmt.Fprintf(os.Stderr, "  open      decode a share token\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		reg:    registry.Default(),
		store:  state.NewStore(state.NewFileBackend(cfg.Store.Dir)),
	}, nil
}

// graph builds a stopped graph holding the default patch.
func (a *app) graph(sampleRate float64) *patch.Graph {
	var srcOpts []modules.Option
	if dir := a.cfg.Engine.ModulesDir; dir != "" {
		srcOpts = append(srcOpts, modules.WithFS(os.DirFS(dir)))
	}

	l := loader.New(modules.NewSource(srcOpts...), loader.WithLogger(a.logger))

	g := patch.New(a.reg, l,
		patch.WithLogger(a.logger),
		patch.WithSampleRate(sampleRate),
		patch.WithLoadTimeout(a.cfg.Engine.LoadTimeout),
		patch.WithAnalyserSize(a.cfg.Engine.AnalyserSize),
	)
	g.Reset()

	return g
}

// patchFlags adds the flags selecting the initial patch.
type patchFlags struct {
	slot  *string
	token *string
}

func addPatchFlags(fs *flag.FlagSet) patchFlags {
	return patchFlags{
		slot:  fs.String("slot", "", "start from a saved slot"),
		token: fs.String("token", "", "start from a share token"),
	}
}

func (a *app) apply(g *patch.Graph, pf patchFlags) error {
	var (
		snap patch.Snapshot
		err  error
	)

	switch {
	case *pf.slot != "" && *pf.token != "":
		return errors.New("-slot and -token are exclusive")
	case *pf.slot != "":
		snap, err = a.store.Load(*pf.slot)
	case *pf.token != "":
		snap, err = state.DecodeCompact(*pf.token)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	return g.Restore(snap)
}

func (a *app) modules(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("modules", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tLabel\tInputs\tOutputs\tParams\n")
	fmt.Fprintf(tw, "--\t-----\t------\t-------\t------\n")

	for _, def := range a.reg.Defs() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			def.ID, def.Label, portNames(def.Inputs), portNames(def.Outputs), paramNames(def.Params))
	}

	return tw.Flush()
}

func portNames(ports []registry.Port) string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name + ":" + p.Kind.String()
	}

	return strings.Join(names, " ")
}

func paramNames(params []registry.Param) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = fmt.Sprintf("%s=%g", p.Name, p.Default)
	}

	return strings.Join(names, " ")
}

func (a *app) render(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	out := fs.String("o", "patch.wav", "output WAV file")
	seconds := fs.Float64("seconds", 4, "duration in seconds")
	bits := fs.Int("bits", 16, "bit depth (16, 24 or 32)")
	pf := addPatchFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	sr := a.cfg.Audio.SampleRate

	g := a.graph(sr)
	defer g.Stop()

	if err := a.apply(g, pf); err != nil {
		return err
	}

	if err := g.Start(ctx); err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}

	if err := render.WAV(f, g, int(sr), *seconds, *bits); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	a.logger.Info("rendered patch", "file", *out, "seconds", *seconds, "sample_rate", sr)

	return nil
}

// stream opens the default device, starts g and plays it until ctx is done.
func (a *app) stream(ctx context.Context, g *patch.Graph) error {
	player, err := playback.Open(g, a.cfg.Audio.SampleRate, a.cfg.Audio.BlockSize)
	if err != nil {
		return err
	}

	if rate := player.SampleRate(); rate != a.cfg.Audio.SampleRate {
		a.logger.Warn("device sample rate differs", "want", a.cfg.Audio.SampleRate, "got", rate)
	}

	if err := g.Start(ctx); err != nil {
		return errors.Join(err, player.Close())
	}

	a.logger.Info("playing; press Ctrl-C to stop")

	return player.Run(ctx)
}

func (a *app) play(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	pf := addPatchFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	g := a.graph(a.cfg.Audio.SampleRate)
	defer g.Stop()

	if err := a.apply(g, pf); err != nil {
		return err
	}

	return a.stream(ctx, g)
}

func (a *app) midi(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("midi", flag.ContinueOnError)
	port := fs.String("port", a.cfg.MIDI.Port, "MIDI input name substring")
	channel := fs.Int("channel", a.cfg.MIDI.Channel, "MIDI channel 0-15, -1 for all")
	pf := addPatchFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	g := a.graph(a.cfg.Audio.SampleRate)
	defer g.Stop()

	if err := a.apply(g, pf); err != nil {
		return err
	}

	ctl, err := midictl.New(g, a.reg, a.cfg.MIDI.Bindings,
		midictl.WithChannel(*channel), midictl.WithLogger(a.logger))
	if err != nil {
		return err
	}

	in, err := midictl.FindInPort(*port)
	if err != nil {
		return err
	}

	stop, err := ctl.Listen(in)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", in, err)
	}
	defer stop()

	for _, b := range ctl.Bindings() {
		a.logger.Info("midi binding", "cc", b.Controller, "module", b.Module, "param", b.Param.Name)
	}

	return a.stream(ctx, g)
}

func (a *app) mcp(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	g := a.graph(a.cfg.Audio.SampleRate)
	defer g.Stop()

	return mcpserver.New(g, a.store, version, mcpserver.WithLogger(a.logger)).ServeStdio()
}

func (a *app) slots(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	remove := fs.String("rm", "", "remove the named slot")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *remove != "" {
		return a.store.Remove(*remove)
	}

	names, err := a.store.List()
	if err != nil {
		return err
	}

	for _, n := range names {
		fmt.Println(n)
	}

	return nil
}

func (a *app) share(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("share", flag.ContinueOnError)
	pf := addPatchFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	g := a.graph(a.cfg.Audio.SampleRate)
	if err := a.apply(g, pf); err != nil {
		return err
	}

	token, err := state.EncodeCompact(g.Snapshot())
	if err != nil {
		return err
	}

	fmt.Println(token)

	return nil
}

func (a *app) open(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	save := fs.String("save", "", "store the decoded patch in this slot")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("want exactly one token")
	}

	snap, err := state.DecodeCompact(fs.Arg(0))
	if err != nil {
		return err
	}

	if *save != "" {
		return a.store.Save(*save, snap)
	}

	data, err := state.Marshal(snap)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "%s\n", data)

	return err
}
