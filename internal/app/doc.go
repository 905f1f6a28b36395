// Package app wires the scheduler into a runnable tool: it loads a round
// file, runs its rounds on a worker pool until one completes, and exposes
// health, in-flight and round history endpoints while doing so. It is
// decoupled from any specific entrypoint like a CLI.
package app
