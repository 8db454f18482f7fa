package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/rhi"
)

type fakeDevice struct{ name string }

func (d *fakeDevice) Name() string                                 { return d.name }
func (d *fakeDevice) Accelerators() int                            { return 1 }
func (d *fakeDevice) NewContext(rhi.Pipeline) (rhi.Context, error) { return nil, errors.New("fake") }
func (d *fakeDevice) Submit([]rhi.CommandList) error               { return nil }

func register(t *testing.T, name string, f Factory) {
	t.Helper()
	Register(name, f)
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryOpen(t *testing.T) {
	register(t, "test-a", func() (rhi.Device, error) { return &fakeDevice{name: "a"}, nil })

	if !IsRegistered("test-a") {
		t.Fatal("IsRegistered(test-a) = false")
	}
	d, err := Open("test-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Name() != "a" {
		t.Errorf("Name() = %q, want a", d.Name())
	}
	if MustOpen("test-a") == nil {
		t.Error("MustOpen returned nil")
	}
}

func TestRegistryOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist")
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Fatalf("Open error = %v, want ErrBackendNotAvailable", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustOpen did not panic")
		}
	}()
	MustOpen("does-not-exist")
}

func TestRegistryFactoryErrors(t *testing.T) {
	boom := errors.New("boom")
	register(t, "test-fail", func() (rhi.Device, error) { return nil, boom })
	register(t, "test-nil", func() (rhi.Device, error) { return nil, nil })

	if _, err := Open("test-fail"); !errors.Is(err, boom) {
		t.Errorf("Open(test-fail) error = %v, want %v", err, boom)
	}
	if _, err := Open("test-nil"); !errors.Is(err, ErrNilDevice) {
		t.Errorf("Open(test-nil) error = %v, want ErrNilDevice", err)
	}
}

func TestRegistryReplaceAndUnregister(t *testing.T) {
	register(t, "test-r", func() (rhi.Device, error) { return &fakeDevice{name: "first"}, nil })
	before := Count()
	Register("test-r", func() (rhi.Device, error) { return &fakeDevice{name: "second"}, nil })

	if Count() != before {
		t.Errorf("Count() = %d after replace, want %d", Count(), before)
	}
	d, err := Open("test-r")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "second" {
		t.Errorf("Name() = %q, want second", d.Name())
	}

	Unregister("test-r")
	if IsRegistered("test-r") {
		t.Error("still registered after Unregister")
	}
}

func TestRegistryBackendsSorted(t *testing.T) {
	register(t, "test-z", func() (rhi.Device, error) { return &fakeDevice{}, nil })
	register(t, "test-m", func() (rhi.Device, error) { return &fakeDevice{}, nil })

	names := Backends()
	if !slices.IsSorted(names) {
		t.Errorf("Backends() = %v, not sorted", names)
	}
	if !slices.Contains(names, "test-z") || !slices.Contains(names, "test-m") {
		t.Errorf("Backends() = %v, missing test backends", names)
	}
}

func TestRegisterNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register(nil) did not panic")
		}
	}()
	Register("test-nil-factory", nil)
}

func TestDefaultPriority(t *testing.T) {
	saved := backendPriority
	backendPriority = []string{"test-second", "test-first"}
	t.Cleanup(func() { backendPriority = saved })

	register(t, "test-first", func() (rhi.Device, error) { return &fakeDevice{name: "first"}, nil })
	register(t, "test-second", func() (rhi.Device, error) { return nil, errors.New("unavailable") })

	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Name() != "first" {
		t.Errorf("Default() = %q, want first (second fails to open)", d.Name())
	}
}
