//go:build js && wasm

package main

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

func cableArgs(args []js.Value) (routing.PortRef, routing.PortRef, string) {
	if len(args) < 2 {
		return routing.PortRef{}, routing.PortRef{}, "want from and to"
	}

	from, err := routing.ParsePortRef(args[0].String())
	if err != nil {
		return routing.PortRef{}, routing.PortRef{}, err.Error()
	}

	to, err := routing.ParsePortRef(args[1].String())
	if err != nil {
		return routing.PortRef{}, routing.PortRef{}, err.Error()
	}

	return from, to, ""
}

func cablesToJS(cables []patch.Cable) js.Value {
	arr := js.Global().Get("Array").New(len(cables))
	for i, c := range cables {
		obj := js.Global().Get("Object").New()
		obj.Set("from", c.From.String())
		obj.Set("to", c.To.String())
		arr.SetIndex(i, obj)
	}

	return arr
}

func cablesFromJS(v js.Value) ([]patch.Cable, error) {
	if v.Type() != js.TypeObject || v.Get("length").Type() != js.TypeNumber {
		return nil, errors.New("setConnections: expected an array")
	}

	cables := make([]patch.Cable, 0, v.Length())
	for i := range v.Length() {
		item := v.Index(i)

		from, err := routing.ParsePortRef(item.Get("from").String())
		if err != nil {
			return nil, fmt.Errorf("cable %d: %w", i, err)
		}

		to, err := routing.ParsePortRef(item.Get("to").String())
		if err != nil {
			return nil, fmt.Errorf("cable %d: %w", i, err)
		}

		cables = append(cables, patch.Cable{From: from, To: to})
	}

	return cables, nil
}

// moduleDefs mirrors the editor's definition table: id → {label, inputs,
// outputs, params, knobs, isSeq, hasScope, wide}.
func moduleDefs(defs []registry.ModuleTypeDef) js.Value {
	out := js.Global().Get("Object").New()

	for _, def := range defs {
		obj := js.Global().Get("Object").New()
		obj.Set("label", def.Label)
		obj.Set("isSeq", def.Sequencer)
		obj.Set("hasScope", def.HasScope)
		obj.Set("wide", def.Wide)
		obj.Set("inputs", portsToJS(def.Inputs))
		obj.Set("outputs", portsToJS(def.Outputs))

		params := js.Global().Get("Object").New()
		knobs := js.Global().Get("Array").New(len(def.Params))

		for i, p := range def.Params {
			params.Set(p.Name, p.Default)

			k := js.Global().Get("Object").New()
			k.Set("param", p.Name)
			k.Set("label", p.Label)
			k.Set("min", p.Min)
			k.Set("max", p.Max)
			k.Set("step", p.Step)
			k.Set("def", p.Default)
			k.Set("log", p.Log)
			knobs.SetIndex(i, k)
		}

		obj.Set("params", params)
		obj.Set("knobs", knobs)
		out.Set(def.ID, obj)
	}

	return out
}

func portsToJS(ports []registry.Port) js.Value {
	arr := js.Global().Get("Array").New(len(ports))
	for i, p := range ports {
		obj := js.Global().Get("Object").New()
		obj.Set("name", p.Name)
		obj.Set("label", p.Label)
		obj.Set("type", p.Kind.String())
		arr.SetIndex(i, obj)
	}

	return arr
}

// analyserToJS exposes a subset of the Web Audio AnalyserNode interface.
func analyserToJS(a *audiograph.Analyser) js.Value {
	obj := js.Global().Get("Object").New()
	obj.Set("fftSize", a.Size())
	obj.Set("frequencyBinCount", a.Bins())

	td := make([]float64, a.Size())
	bytes := make([]byte, a.Size())
	freq := make([]float64, a.Bins())

	obj.Set("getFloatTimeDomainData", export(func(args []js.Value) any {
		n := a.TimeDomain(td)
		return fillFloat32(args, td[:n])
	}))

	obj.Set("getByteTimeDomainData", export(func(args []js.Value) any {
		n := a.ByteTimeDomain(bytes)
		if len(args) > 0 {
			js.CopyBytesToJS(args[0], bytes[:n])
		}

		return js.Null()
	}))

	obj.Set("getFloatFrequencyData", export(func(args []js.Value) any {
		n := a.FrequencyDB(freq)
		return fillFloat32(args, freq[:n])
	}))

	return obj
}

func fillFloat32(args []js.Value, src []float64) any {
	if len(args) < 1 {
		return js.Null()
	}

	dst := args[0]
	n := min(dst.Length(), len(src))

	for i := range n {
		dst.SetIndex(i, src[i])
	}

	return js.Null()
}
