// Package backend is a registry of rhi device backends.
//
// Backends register a Factory from init() and are opened by name at
// runtime, in the style of database/sql drivers:
//
//	import (
//		"github.com/gogpu/rhi/backend"
//		_ "github.com/gogpu/rhi/backend/capture"
//		_ "github.com/gogpu/rhi/backend/native"
//	)
//
//	dev, err := backend.Open("noop")
//
// # Built-in Backends
//
//   - "capture": in-memory event log (package capture), for tests and
//     debugging
//   - "noop": wgpu hal noop device (package native)
//
// Default opens the first available backend in priority order.
//
// # Custom Backends
//
// Any rhi.Device can be registered:
//
//	backend.Register("mydevice", func() (rhi.Device, error) {
//		return newMyDevice()
//	})
package backend
