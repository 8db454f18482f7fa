package native

import "errors"

// Errors returned by Device and its contexts.
var (
	// ErrNilDevice is returned by Open without a hal device or queue.
	ErrNilDevice = errors.New("native: nil hal device or queue")

	// ErrNoAdapter is returned when a hal instance exposes no adapter.
	ErrNoAdapter = errors.New("native: no adapter available")

	// ErrNotHAL is returned by OpenProvider when the provider does not expose
	// hal types.
	ErrNotHAL = errors.New("native: provider does not expose hal device and queue")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("native: device closed")

	// ErrMaskUnsupported is returned for accelerator masks other than {0}.
	ErrMaskUnsupported = errors.New("native: only accelerator 0 is available")

	// ErrForeignResource is returned for resources not created by a native
	// device, or of the wrong kind.
	ErrForeignResource = errors.New("native: resource was not created by this backend")

	// ErrForeignList is returned by Submit for lists of another device.
	ErrForeignList = errors.New("native: command list was not created by this device")

	// ErrNoRenderPass is returned for draws outside a render pass.
	ErrNoRenderPass = errors.New("native: no render pass is open")

	// ErrInRenderPass is returned for operations that are not allowed inside
	// a render pass.
	ErrInRenderPass = errors.New("native: render pass is open")

	// ErrNoPipelineState is returned when drawing or dispatching without a
	// pipeline state of the right kind.
	ErrNoPipelineState = errors.New("native: no matching pipeline state bound")

	// ErrUnaligned is returned for buffer updates and copies that are not
	// 4-byte aligned.
	ErrUnaligned = errors.New("native: offset and size must be 4-byte aligned")
)
