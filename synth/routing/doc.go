// Package routing maps logical port references onto concrete connection
// points in an audiograph context.
//
// Each module side with more than one channel is reached through an
// interposed splitter or merger, and a port's channel index comes from the
// registry. Routing against the live context is best effort: [Router]
// reports every outcome as a [Result] and logs failures instead of
// returning them.
package routing
