// xrt_aot captures compilation targets and compiles programs ahead of time.
//
//	xrt_aot -capture target.xtd
//	xrt_aot -compile -target target.xtd program.xsp ...
//	xrt_aot -inspect target.xtd program.xrte ...
//
// -capture snapshots a live backend's target description, so programs can
// later be compiled on machines without the backend installed. -compile turns
// program files into serialized executables, loadable with
// backends.LoadSerialized. -inspect pretty-prints either kind of artifact.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/xrt/backends"
	_ "github.com/gomlx/xrt/backends/default"
	"github.com/gomlx/xrt/targets"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "", "Backend to capture from or compile with, as \"name\" or \"name:config\". "+
		"The default reads $"+backends.ConfigEnvVar+" and falls back to the first registered backend.")

	flagCapture = flag.Bool("capture", false, "Capture the live backend's target description into the given snapshot file.")
	flagCompile = flag.Bool("compile", false, "Compile the given program files ahead of time. "+
		"Each FILE"+programExtension+" becomes FILE"+executableExtension+".")
	flagInspect = flag.Bool("inspect", false, "Describe the given target snapshot or serialized executable files.")

	flagTarget = flag.String("target", "", "Target snapshot to compile against. "+
		"The default captures the target from the live backend, which then must be able to run the result.")
	flagOutputDir = flag.String("output_dir", "", "Directory where compiled executables are written. "+
		"The default writes next to each program file.")
)

func main() {
	flag.Parse()
	args := flag.Args()

	modes := 0
	for _, selected := range []bool{*flagCapture, *flagCompile, *flagInspect} {
		if selected {
			modes++
		}
	}
	if modes != 1 {
		klog.Errorf("Exactly one of -capture, -compile or -inspect is required. See 'xrt_aot -help'.")
		os.Exit(1)
	}

	switch {
	case *flagCapture:
		capture(args)
	case *flagCompile:
		compileAll(args)
	default:
		inspectAll(args)
	}
}

// newBackend creates the live backend selected by -backend, or the
// environment's default one.
func newBackend() backends.Backend {
	if *flagBackend != "" {
		return must.M1(backends.NewWithConfig(*flagBackend))
	}
	return must.M1(backends.New())
}

func capture(args []string) {
	if len(args) != 1 {
		klog.Errorf("-capture takes exactly one output file. See 'xrt_aot -help'.")
		os.Exit(1)
	}
	path := args[0]
	if filepath.Ext(path) == "" {
		path += targets.FileExtension
	}

	backend := newBackend()
	defer backend.Finalize()
	target := must.M1(backend.CaptureTarget())
	must.M(targets.WriteFile(path, target))
	fmt.Printf("Captured %s to %q.\n", target, path)
}
