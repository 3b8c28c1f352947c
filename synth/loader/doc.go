// Package loader turns module types into live processing nodes.
//
// A [Source] instantiates the native node for a module type. The [Loader]
// wraps a Source, checks the node against the type's port layout, and builds
// the parameter address table with a two-stage [Resolver]: the last path
// segment of each native address is the candidate name, then per-type
// [RenameRule]s translate names that diverge from the registry's naming.
// Native parameters without a matching registry parameter are dropped.
package loader
