// Package manager provides the container lifecycle for one model service:
// one-time initialization before readiness, admission of inference requests
// through a single generation slot, and idle detection for reclaim.
// It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, Start/Ready/Close.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: lifecycle state and the Service contract.
//   - errors.go: error types and helpers (IsTooBusy, IsInvalidInput, IsNotReady).
//   - queue_admission.go: queue slots plus the single in-flight slot.
//   - infer.go: Do/Call, the inference entry points.
//   - idle.go: WatchIdle, the idle-timeout reclaim trigger.
//   - status_report.go: Status reporting for /status.
//   - events.go, eventpub_*.go: lifecycle events and publishers.
//   - metrics.go: Prometheus collectors for inference and cold starts.
//
// The GPU and the loaded model are one shared mutable resource per process,
// so at most one inference runs at a time. Services do not lock internally;
// they rely on Do for serialization.
package manager
