// Package registry is the static catalog of synthesizer module types.
//
// A [ModuleTypeDef] describes a module's ports (each tagged audio or control
// and carrying its fixed channel index), its parameters with defaults and
// control ranges, and layout flags used by editors. The catalog holds pure
// data; it is read-only once the process has finished registering types.
package registry
