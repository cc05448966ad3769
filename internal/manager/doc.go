// Package manager coordinates the model catalog, the single generation
// session and the admission gate. It is structured into small files by
// concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and options; NewWithConfig applies defaults.
//   - types.go: internal state types (State, Snapshot) and stream types.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - admission.go: gate acquisition for generation requests.
//   - ensure.go: EnsureModel lifecycle and loading.
//   - inference.go: Generate and Chat entry points.
//   - options.go: mapping of request options onto session setters.
//   - status_report.go: Status/Snapshot/Profile reporting helpers.
//   - unload.go: releasing the loaded model.
//   - metrics.go: Prometheus collectors.
//
// External packages should treat this package as the orchestration layer and
// use public methods only. Internal types are subject to change.
package manager
