package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/backends/hostgo"
	"github.com/gomlx/xrt/program"
	"github.com/gomlx/xrt/targets"
	"github.com/gomlx/xrt/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

const (
	// programExtension is the conventional suffix of the program files
	// -compile reads.
	programExtension = ".xsp"

	// executableExtension is the conventional suffix of the serialized
	// executables -compile writes.
	executableExtension = ".xrte"
)

func compileAll(paths []string) {
	if len(paths) == 0 {
		klog.Errorf("-compile takes one or more program files. See 'xrt_aot -help'.")
		os.Exit(1)
	}
	target := compileTarget()
	fmt.Printf("Compiling for %s.\n", target)

	var bar *progressbar.ProgressBar
	if len(paths) > 1 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("compiling"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("programs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
		)
	}

	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers("program", "arrays", "code", "artifact")
	for _, path := range paths {
		prog, err := parseProgramFile(path)
		if err != nil {
			klog.Errorf("Reading program %q: %+v", path, err)
			os.Exit(1)
		}
		exec, err := backends.Compile(nil, prog, target, nil)
		if err != nil {
			klog.Errorf("Compiling %q: %+v", path, err)
			os.Exit(1)
		}
		artifact := artifactPath(path)
		must.M(os.WriteFile(artifact, must.M1(exec.Serialize()), 0644))
		table.Row(prog.Name,
			fmt.Sprintf("%d in, %d out", len(exec.InputShapes()), len(exec.OutputShapes())),
			humanize.Bytes(uint64(len(exec.Code()))),
			artifact)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}
	fmt.Println(table.Render())
}

// compileTarget returns the description to compile against: the -target
// snapshot when given, otherwise a capture of the live backend.
func compileTarget() *targets.Description {
	if *flagTarget != "" {
		return must.M1(targets.ReadFile(*flagTarget))
	}
	backend := newBackend()
	defer backend.Finalize()
	return must.M1(backend.CaptureTarget())
}

// artifactPath maps a program file to the executable file -compile writes,
// honoring -output_dir.
func artifactPath(programPath string) string {
	base := filepath.Base(programPath)
	base = strings.TrimSuffix(base, programExtension) + executableExtension
	dir := *flagOutputDir
	if dir == "" {
		dir = filepath.Dir(programPath)
	}
	return filepath.Join(dir, base)
}

// parseProgramFile reads a program file: the program text itself plus
// directive lines carrying the metadata a compiler needs. Directives may
// appear anywhere in the file:
//
//	name scale            program name, defaults to the file name
//	type xrt.stack        program type, defaults to the hostgo stack dialect
//	input Float32 2 3     one program input: dtype then dimensions
//	output Float32        one program output, here a scalar
//
// Inputs and outputs are ordered as written. Anything after a '#' is a
// comment. All other lines are handed to the compiler untouched; directive
// lines are blanked rather than removed, so compiler errors keep the file's
// line numbers.
func parseProgramFile(path string) (*program.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading program file %q", path)
	}
	base := filepath.Base(path)
	prog := &program.Program{
		Type: hostgo.ProgramType,
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		text := line
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "name", "type":
			if len(fields) != 2 {
				err = errors.Errorf("%s directive takes one value", fields[0])
				break
			}
			if fields[0] == "name" {
				prog.Name = fields[1]
			} else {
				prog.Type = fields[1]
			}
		case "input", "output":
			var spec program.ArraySpec
			spec, err = parseArraySpec(fields[1:])
			if err != nil {
				break
			}
			if fields[0] == "input" {
				prog.InputSpecs = append(prog.InputSpecs, spec)
			} else {
				prog.OutputSpecs = append(prog.OutputSpecs, spec)
			}
		default:
			continue
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "%s, line %d", path, i+1)
		}
		lines[i] = ""
	}
	prog.Text = []byte(strings.Join(lines, "\n"))
	return prog, nil
}

func parseArraySpec(fields []string) (program.ArraySpec, error) {
	var spec program.ArraySpec
	if len(fields) == 0 {
		return spec, errors.New("input and output directives take a dtype and optional dimensions")
	}
	dtype, err := dtypes.DTypeString(fields[0])
	if err != nil || dtype == dtypes.InvalidDType {
		return spec, errors.Errorf("unknown dtype %q", fields[0])
	}
	dims := make([]int, 0, len(fields)-1)
	for _, field := range fields[1:] {
		dim, err := strconv.Atoi(field)
		if err != nil || dim <= 0 {
			return spec, errors.Errorf("bad dimension %q", field)
		}
		dims = append(dims, dim)
	}
	spec.Shape = shapes.Make(dtype, dims...)
	return spec, nil
}
