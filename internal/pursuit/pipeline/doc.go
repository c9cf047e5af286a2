// Package pipeline orchestrates the pursuit stages into the tracking
// engine: p2scan feeds p3rank, the selection runs through the p4aim
// filters, and p5drive dispatches the result to the mount.
//
// This package is the composition root: it imports the stage packages,
// and none of them import pipeline. Collaborators (feed, camera
// provider, drive sink, tuning store, clock) are injected through
// EngineConfig; there are no package-level singletons, so independent
// engines can run side by side in tests.
package pipeline
