// Package tasks runs template store operations in bulk with real-time progress reporting.
//
// # Core Operations
//
// [BindingEngine] wraps a [store.Store] and provides:
//
//  1. [BindingEngine.WarmChannels] : load the template list and several channels' bindings
//     - Channels load concurrently through an errgroup with a concurrency limit
//     - A failed channel is recorded and the others continue
//
//  2. [BindingEngine.EnsureAll] : make sure every card in a channel has a binding
//     - Existing bindings are left untouched
//     - New bindings use the sheet default, then the global default, then a detached fallback
//     - Cards are paced by an optional rate limiter
//
//  3. [BindingEngine.Migrate] : run the one-shot legacy template import
//
//  4. [BindingEngine.ExportTemplates] : write templates to files with a worker pool
//     - One file per template plus export_manifest.json
//
// # Progress Reporting
//
// Every operation takes an optional progress channel. Sends never block: when the channel is full
// the update is dropped and logged at debug level. [ProgressUpdate] carries the [Phase], step
// counters and a printable message.
package tasks
