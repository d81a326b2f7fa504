package main

import (
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/targets"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

func inspectAll(paths []string) {
	if len(paths) == 0 {
		klog.Errorf("-inspect takes one or more files. See 'xrt_aot -help'.")
		os.Exit(1)
	}
	for _, path := range paths {
		inspectFile(path)
	}
}

// inspectFile dispatches on the artifact kind. Both target snapshots and
// serialized executables are self-describing, so trying the parsers in turn
// is enough.
func inspectFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		klog.Errorf("Reading %q: %+v", path, err)
		os.Exit(1)
	}
	if desc, err := targets.ParseDescription(data); err == nil {
		describeSnapshot(path, len(data), desc)
		return
	}
	exec, err := backends.ParseExecutable(data)
	if err != nil {
		klog.Errorf("%q is neither a target snapshot nor a serialized executable: %+v", path, err)
		os.Exit(1)
	}
	describeExecutable(path, len(data), exec)
}

func describeSnapshot(path string, size int, desc *targets.Description) {
	fmt.Println(titleStyle.Render("Target Snapshot: " + path))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("platform", desc.Platform)
	table.Row("isa", desc.ISA)
	table.Row("devices", humanize.Comma(int64(desc.NumDevices)))
	memory := "unknown"
	if desc.MemoryPerDevice > 0 {
		memory = humanize.IBytes(desc.MemoryPerDevice)
	}
	table.Row("memory/device", memory)
	table.Row("fingerprint", hex.EncodeToString(must.M1(desc.Fingerprint())))
	table.Row("operations", strings.Join(supportedOps(desc.Capabilities), " "))
	table.Row("dtypes", strings.Join(supportedDTypes(desc.Capabilities), " "))
	for _, key := range slices.Sorted(maps.Keys(desc.Attributes)) {
		table.Row(key, desc.Attributes[key])
	}
	table.Row("file size", humanize.Bytes(uint64(size)))
	fmt.Println(table.Render())
}

func describeExecutable(path string, size int, exec *backends.Executable) {
	fmt.Println(titleStyle.Render("Serialized Executable: " + path))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("name", exec.Name())
	table.Row("platform", exec.Platform())
	table.Row("target", exec.Target().String())
	table.Row("target fingerprint", hex.EncodeToString(exec.Fingerprint()))
	table.Row("code size", humanize.Bytes(uint64(len(exec.Code()))))
	table.Row("file size", humanize.Bytes(uint64(size)))
	fmt.Println(table.Render())

	arrays := newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Right)
	arrays.Headers("array", "shape", "memory")
	for i, shape := range exec.InputShapes() {
		arrays.Row(fmt.Sprintf("input #%d", i), shape.String(), humanize.Bytes(uint64(shape.Memory())))
	}
	for i, shape := range exec.OutputShapes() {
		arrays.Row(fmt.Sprintf("output #%d", i), shape.String(), humanize.Bytes(uint64(shape.Memory())))
	}
	fmt.Println(arrays.Render())
}

func supportedOps(c targets.Capabilities) []string {
	ops := make([]string, 0, len(c.Operations))
	for op, ok := range c.Operations {
		if ok {
			ops = append(ops, op)
		}
	}
	slices.Sort(ops)
	return ops
}

func supportedDTypes(c targets.Capabilities) []string {
	dts := make([]dtypes.DType, 0, len(c.DTypes))
	for dtype, ok := range c.DTypes {
		if ok {
			dts = append(dts, dtype)
		}
	}
	slices.Sort(dts)
	names := make([]string, 0, len(dts))
	for _, dtype := range dts {
		names = append(names, dtype.String())
	}
	return names
}
