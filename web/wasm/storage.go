//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/cwbudde/algo-patch/synth/state"
)

// localStorage is a state.Backend over the browser's window.localStorage.
type localStorage struct{}

func (localStorage) Read(key string) (data []byte, err error) {
	defer recoverJS(&err)

	v := js.Global().Get("localStorage").Call("getItem", key)
	if v.IsNull() {
		return nil, fmt.Errorf("%w: %q", state.ErrNotFound, key)
	}

	return []byte(v.String()), nil
}

func (localStorage) Write(key string, data []byte) (err error) {
	defer recoverJS(&err)

	js.Global().Get("localStorage").Call("setItem", key, string(data))

	return nil
}

// recoverJS converts a thrown JS exception, such as a full quota, into err.
func recoverJS(err *error) {
	r := recover()
	if r == nil {
		return
	}

	if jsErr, ok := r.(js.Error); ok {
		*err = jsErr
		return
	}

	*err = fmt.Errorf("localStorage: %v", r)
}

// consoleWriter routes log output to console.log.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	js.Global().Get("console").Call("log", string(p))
	return len(p), nil
}
