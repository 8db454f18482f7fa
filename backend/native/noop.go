package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
)

// BackendNoop is the registry name of the hal/noop device.
const BackendNoop = "noop"

func init() {
	backend.Register(BackendNoop, func() (rhi.Device, error) {
		return OpenNoop()
	})
}

// OpenNoop opens a Device on the hal noop backend, which accepts every call
// and executes nothing. Close destroys the hal device and instance.
func OpenNoop(opts ...Option) (*Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("native: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	od, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open noop adapter: %w", err)
	}

	d, err := Open(od.Device, od.Queue, append([]Option{WithName(BackendNoop)}, opts...)...)
	if err != nil {
		od.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.release = func() {
		od.Device.Destroy()
		instance.Destroy()
	}
	return d, nil
}
