// Package modules provides the built-in synthesizer modules.
//
// Each module type has a compiled description (<type>.json, embedded under
// descriptions/) listing its channel counts and native parameter controls,
// and a [Kernel] that renders it. Native addresses follow the compiled
// module's own naming, for example /VCF/cutoff or /SEQ/step3_pitch; the
// loader maps them onto registry parameter names.
//
// The filter, delay and reverb kernels are built on algo-dsp.
package modules
