// Package patch owns a live modular patch: one module instance per
// registered type, the cable list, and parameter values.
//
// A [Graph] keeps intended topology and parameters independent of whether it
// is running. [Graph.Start] loads every module's node in parallel, routes the
// output module to the destination with an analysis tap, reapplies all
// parameters and materializes every cable. [Graph.Stop] tears the live
// context down but keeps cables and parameters, so the next Start restores
// the same patch.
//
// Failures of a single module load or a single cable are logged and
// swallowed; the rest of the graph keeps working. All methods are safe for
// concurrent use and callbacks never run while the graph lock is held.
package patch
