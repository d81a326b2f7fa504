// Package backends defines the interface a device runtime needs to implement
// to compile, load and execute programs through xrt.
//
// The lifecycle is split the way ahead-of-time compilation requires:
//
//   - A live Backend owns devices and buffers, and can capture a
//     targets.Description of itself.
//   - A Compiler turns a program plus a captured target into an Executable.
//     The backend is optional at that point: compilation works against the
//     snapshot alone, possibly on a machine without any device.
//   - Load binds an Executable (or its serialized form) to a live backend,
//     yielding a LoadedExecutable that can Execute.
//
// Backends register a constructor in their package init, so importing a
// backend package makes it available; which one a process uses is selected
// with a configuration string (see New).
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/targets"
)

// Backend is the API a live device runtime implements.
type Backend interface {
	// Name returns the short name of the backend, e.g. "hostgo". It doubles
	// as the platform name in captured targets.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Devices returns the addressable devices, ordered by ID.
	Devices() devices.List

	// LookupDevice resolves a device ID to this backend's live handle. It is
	// the resolver handed to program deserialization.
	LookupDevice(id devices.ID) (devices.Device, error)

	// CaptureTarget snapshots the backend as a compilation target. The
	// snapshot is pure data: it holds no reference back to the backend and
	// stays valid after Finalize.
	CaptureTarget() (*targets.Description, error)

	// Load binds a compiled executable to this backend's devices. See also
	// LoadSerialized.
	Load(exec *Executable, options LoadOptions) (LoadedExecutable, error)

	// DataInterface is the sub-interface that defines the API to transfer Buffer to/from devices.
	DataInterface

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a constructor that takes as input
// a configuration string that is passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package. Registering
// the same name twice panics.
func Register(name string, constructor Constructor) {
	if _, found := registeredConstructors[name]; found {
		exceptions.Panicf("backend %q already registered", name)
	}
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the backend configuration to use if the environment
// variable ConfigEnvVar is not set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend
// configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "hostgo")
// and "<backend_configuration>" is backend specific.
const ConfigEnvVar = "XRT_BACKEND"

// New returns a new Backend using the default configuration.
//
// The default is:
//
// 1. The environment variable ConfigEnvVar ("XRT_BACKEND") is used as the configuration if set.
// 2. Next the variable DefaultConfig is used as the configuration if set.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig creates a Backend from a configuration string formatted as
// "<backend_name>:<backend_configuration>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "hostgo")
// and "<backend_configuration>" is backend specific. A config without a ":"
// is taken as just the backend name, and an empty config selects the first
// registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(
			`no backends registered: import one, e.g. import _ "github.com/gomlx/xrt/backends/hostgo"`)
	}
	backendName := firstRegistered
	backendConfig := ""
	if config != "" {
		backendName = config
		if idx := strings.Index(config, ":"); idx != -1 {
			backendName = config[:idx]
			backendConfig = config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("backend %q not registered (registered: %s) for configuration %q",
			backendName, strings.Join(List(), ", "), config)
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q", backendName)
	}
	klog.V(1).Infof("xrt: created backend %q (config %q)", backendName, backendConfig)
	return backend, nil
}

// MustNew is New for programs where no backend is fatal. It panics on error.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		exceptions.Panicf("backends.MustNew: %+v", err)
	}
	return backend
}
