// Package npu owns the accelerator-side resources of the runtime: hardware
// binaries loaded onto the device and the named kernel applications bound to
// them. It is organized by concern:
//
//   - driver.go: the Driver contract (binary registration, hardware context, kernel lookup).
//   - manager.go: Manager, the deduplicating registry of binaries and applications.
//   - handle.go: Handle, the copyable reference used to launch work.
//   - runlist.go: RunList, batched submission scoped to one hardware context.
//   - diag.go / telemetry_*.go: listing, raw trace dumps and device telemetry.
//   - sim.go: SimDriver, an in-process device used by tests and the "sim" driver mode.
//   - xrt.go: the vendor runtime entry point, which reports the device as
//     unavailable when no runtime bindings are present.
//
// Registration is rare and guarded by a mutex. Steady-state launches only read
// handles; callers serialize generation through the admission gate.
package npu
