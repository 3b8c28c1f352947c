//go:build js && wasm

package main

import (
	"context"
	"log/slog"
	"strings"
	"syscall/js"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/modules"
	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
	"github.com/cwbudde/algo-patch/synth/state"
)

var (
	graph    *patch.Graph
	store    *state.Store
	bus      audiograph.Bus
	analyser js.Value
	funcs    []js.Func
)

func main() {
	api := js.Global().Get("Object").New()

	api.Set("init", export(func(args []js.Value) any {
		sr := patch.DefaultSampleRate
		if len(args) > 0 && args[0].Truthy() {
			sr = args[0].Float()
		}

		if graph != nil {
			graph.Stop()
		}

		logger := slog.New(slog.NewTextHandler(consoleWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
		graph = patch.New(registry.Default(), loader.New(modules.NewSource(), loader.WithLogger(logger)),
			patch.WithSampleRate(sr), patch.WithLogger(logger))
		graph.Reset()
		store = state.NewStore(localStorage{})
		analyser = js.Null()

		return js.Null()
	}))

	api.Set("start", export(func([]js.Value) any {
		return promise(func() (any, error) {
			if err := graph.Start(context.Background()); err != nil {
				return nil, err
			}

			return js.Null(), nil
		})
	}))

	api.Set("stop", export(func([]js.Value) any {
		graph.Stop()
		analyser = js.Null()

		return js.Null()
	}))

	api.Set("connect", export(func(args []js.Value) any {
		from, to, errStr := cableArgs(args)
		if errStr != "" {
			return errStr
		}

		return errValue(graph.Connect(from, to))
	}))

	api.Set("disconnect", export(func(args []js.Value) any {
		from, to, errStr := cableArgs(args)
		if errStr != "" {
			return errStr
		}

		graph.Disconnect(from, to)

		return js.Null()
	}))

	api.Set("disconnectInput", export(func(args []js.Value) any {
		if len(args) < 1 {
			return "disconnectInput: missing port"
		}

		to, err := routing.ParsePortRef(args[0].String())
		if err != nil {
			return err.Error()
		}

		graph.DisconnectAllInto(to)

		return js.Null()
	}))

	api.Set("setParam", export(func(args []js.Value) any {
		if len(args) < 3 {
			return "setParam: want module, param, value"
		}

		return errValue(graph.SetParameter(args[0].String(), args[1].String(), args[2].Float()))
	}))

	api.Set("getParam", export(func(args []js.Value) any {
		if len(args) < 2 {
			return js.Undefined()
		}

		v, ok := graph.GetParameter(args[0].String(), args[1].String())
		if !ok {
			return js.Undefined()
		}

		return v
	}))

	api.Set("getModuleDefs", export(func([]js.Value) any {
		return moduleDefs(graph.ModuleDefs())
	}))

	api.Set("getConnections", export(func([]js.Value) any {
		return cablesToJS(graph.Connections())
	}))

	api.Set("setConnections", export(func(args []js.Value) any {
		if len(args) < 1 {
			return "setConnections: missing cables"
		}

		cables, err := cablesFromJS(args[0])
		if err != nil {
			return err.Error()
		}

		return errValue(graph.SetConnections(cables))
	}))

	api.Set("getAnalyser", export(func([]js.Value) any {
		a := graph.Analyser()
		if a == nil {
			analyser = js.Null()
			return analyser
		}

		if analyser.IsNull() {
			analyser = analyserToJS(a)
		}

		return analyser
	}))

	api.Set("getSampleRate", export(func([]js.Value) any {
		return graph.SampleRate()
	}))

	api.Set("setSeqStepCallback", export(func(args []js.Value) any {
		if len(args) < 1 || args[0].Type() != js.TypeFunction {
			graph.OnStep(nil)
			return js.Null()
		}

		fn := args[0]
		graph.OnStep(func(step int) { fn.Invoke(step) })

		return js.Null()
	}))

	api.Set("onReady", export(func(args []js.Value) any {
		if len(args) < 1 || args[0].Type() != js.TypeFunction {
			graph.OnReady(nil)
			return js.Null()
		}

		fn := args[0]
		graph.OnReady(func() { fn.Invoke() })

		return js.Null()
	}))

	api.Set("render", export(func(args []js.Value) any {
		if graph == nil || len(args) < 1 {
			return js.Global().Get("Float32Array").New(0)
		}

		n := args[0].Int()
		if bus.Frames() != n {
			bus = audiograph.NewBus(2, n)
		}

		graph.Render(bus)

		// Interleaved stereo.
		arr := js.Global().Get("Float32Array").New(2 * n)
		for i := range n {
			arr.SetIndex(2*i, bus[0][i])
			arr.SetIndex(2*i+1, bus[1][i])
		}

		return arr
	}))

	api.Set("save", export(func(args []js.Value) any {
		if len(args) < 1 {
			return "save: missing name"
		}

		return errValue(store.Save(args[0].String(), graph.Snapshot()))
	}))

	api.Set("load", export(func(args []js.Value) any {
		if len(args) < 1 {
			return false
		}

		snap, err := store.Load(args[0].String())
		if err != nil {
			return false
		}

		return graph.Restore(snap) == nil
	}))

	api.Set("remove", export(func(args []js.Value) any {
		if len(args) < 1 {
			return "remove: missing name"
		}

		return errValue(store.Remove(args[0].String()))
	}))

	api.Set("listPatches", export(func([]js.Value) any {
		names, err := store.List()
		if err != nil {
			return js.Global().Get("Array").New()
		}

		arr := js.Global().Get("Array").New(len(names))
		for i, n := range names {
			arr.SetIndex(i, n)
		}

		return arr
	}))

	api.Set("toHash", export(func([]js.Value) any {
		token, err := state.EncodeCompact(graph.Snapshot())
		if err != nil {
			return err.Error()
		}

		js.Global().Get("location").Set("hash", token)

		return token
	}))

	api.Set("fromHash", export(func(args []js.Value) any {
		hash := js.Global().Get("location").Get("hash").String()
		if len(args) > 0 && args[0].Type() == js.TypeString {
			hash = args[0].String()
		}

		if strings.TrimPrefix(hash, "#") == "" {
			return false
		}

		snap, err := state.DecodeCompact(hash)
		if err != nil {
			js.Global().Get("console").Call("warn", "failed to decode hash state:", err.Error())
			return false
		}

		return graph.Restore(snap) == nil
	}))

	js.Global().Set("AlgoPatch", api)
	select {}
}

func export(fn func([]js.Value) any) js.Func {
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		return fn(args)
	})
	funcs = append(funcs, f)
	return f
}

func errValue(err error) any {
	if err != nil {
		return err.Error()
	}

	return js.Null()
}

// promise runs fn on its own goroutine so that blocking work does not stall
// the JS event loop.
func promise(fn func() (any, error)) js.Value {
	var executor js.Func

	executor = js.FuncOf(func(_ js.Value, args []js.Value) any {
		resolve, reject := args[0], args[1]

		go func() {
			defer executor.Release()

			v, err := fn()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}

			resolve.Invoke(v)
		}()

		return nil
	})

	return js.Global().Get("Promise").New(executor)
}
