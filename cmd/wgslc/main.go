// Command wgslc compiles WGSL shaders to SPIR-V.
//
// Usage:
//
//	wgslc compile [-o out.spv] [-config backend.yaml] [-bounds policy] [-debug] files...
//	wgslc ir files...
//	wgslc dis file.spv
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/gogpu/wgslc"
	"github.com/gogpu/wgslc/ir"
	"github.com/gogpu/wgslc/spirv"
	"github.com/gogpu/wgslc/wgsl"
)

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile WGSL files to SPIR-V",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file, only with a single input (default: input with .spv extension)"),
			cli.NewFlag("config", "", "YAML file with compile options"),
			cli.NewFlag("bounds", "", "bounds check policy for all accesses: restrict, read_zero_skip_write, unchecked"),
			cli.NewFlag("spirv-version", "", "SPIR-V version, 1.0 to 1.6"),
			cli.NewFlag("debug", false, "emit debug names"),
			cli.NewFlag("validate", true, "validate IR before code generation"),
		},
	}

	irCmd := &cli.Command{
		Name:        "ir",
		Description: "print a summary of the lowered IR",
		Action:      irAct,
		Args:        cli.Args{},
	}

	disCmd := &cli.Command{
		Name:        "dis",
		Description: "disassemble SPIR-V binaries",
		Action:      disAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "wgslc",
		Description: "wgslc compiles WGSL shaders to SPIR-V",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "tlog verbosity topics (lower, overload, spirv, spirv_function, capability)"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			compileCmd,
			irCmd,
			disCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func rootContext() context.Context {
	return tlog.ContextWithSpan(context.Background(), tlog.Root())
}

func compileAct(c *cli.Command) (err error) {
	if len(c.Args) == 0 {
		return errors.New("no input files")
	}

	out := c.String("output")
	if out != "" && len(c.Args) > 1 {
		return errors.New("-o needs exactly one input, got %d", len(c.Args))
	}

	opts, err := compileOptions(c)
	if err != nil {
		return err
	}

	sources := make([]wgslc.Source, len(c.Args))

	for i, a := range c.Args {
		text, err := readSource(a)
		if err != nil {
			return err
		}

		sources[i] = wgslc.Source{Name: a, Text: text}
	}

	results, err := wgslc.CompileAll(rootContext(), sources, opts)
	if err != nil {
		return err
	}

	failed := 0

	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", describe(r.Err))
			failed++

			continue
		}

		dst := out
		if dst == "" {
			dst = strings.TrimSuffix(r.Name, filepath.Ext(r.Name)) + ".spv"
		}

		if err := os.WriteFile(dst, r.SPIRV, 0o644); err != nil {
			return errors.Wrap(err, "write %v", dst)
		}

		tlog.Printw("compiled", "src", sources[i].Name, "dst", dst, "bytes", len(r.SPIRV))
	}

	if failed != 0 {
		return errors.New("%d of %d files failed", failed, len(results))
	}

	return nil
}

// compileOptions layers the config file and then the flags over the defaults.
func compileOptions(c *cli.Command) (opts wgslc.CompileOptions, err error) {
	opts = wgslc.DefaultOptions()

	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, errors.Wrap(err, "read config")
		}

		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, errors.Wrap(err, "parse config %v", path)
		}
	}

	if s := c.String("bounds"); s != "" {
		var p spirv.BoundsCheckPolicy
		if err := p.UnmarshalText([]byte(s)); err != nil {
			return opts, err
		}

		opts.SPIRV.BoundsChecks = spirv.BoundsCheckPolicies{Index: p, Buffer: p}
	}

	if s := c.String("spirv-version"); s != "" {
		if err := opts.SPIRV.Version.UnmarshalText([]byte(s)); err != nil {
			return opts, err
		}
	}

	if c.Bool("debug") {
		opts.SPIRV.Debug = true
	}

	if !c.Bool("validate") {
		opts.Validate = false
	}

	return opts, nil
}

func irAct(c *cli.Command) error {
	ctx := rootContext()

	for _, a := range c.Args {
		text, err := readSource(a)
		if err != nil {
			return err
		}

		ast, err := wgslc.Parse(text)
		if err != nil {
			return errors.New("%v", describe(err))
		}

		module, err := wgslc.Lower(ctx, ast, text, wgsl.DefaultOptions())
		if err != nil {
			return errors.New("%v", describe(err))
		}

		printModule(a, module)
	}

	return nil
}

func printModule(name string, m *ir.Module) {
	fmt.Printf("%s: %d types, %d constants, %d overrides, %d globals\n",
		name, len(m.Types), len(m.Constants), len(m.Overrides), len(m.GlobalVariables))

	for i, gv := range m.GlobalVariables {
		fmt.Printf("  global %d %s: %s in %v\n", i, gv.Name, ir.TypeName(m.Types, m.Types[gv.Type].Inner), gv.Space)
	}

	for i := range m.Functions {
		fn := &m.Functions[i]
		fmt.Printf("  fn %s: %d args, %d locals, %d expressions, %d statements\n",
			fn.Name, len(fn.Arguments), len(fn.LocalVars), len(fn.Expressions), len(fn.Body))
	}

	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		fmt.Printf("  %v entry %s: %d expressions, %d statements\n",
			ep.Stage, ep.Name, len(ep.Function.Expressions), len(ep.Function.Body))
	}
}

func disAct(c *cli.Command) error {
	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read")
		}

		m, err := spirv.Disassemble(data)
		if err != nil {
			return errors.Wrap(err, "disassemble %v", a)
		}

		fmt.Print(m.String())
	}

	return nil
}

// readSource reads a shader file. UTF-16 files are recognized by their BOM.
func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read source")
	}

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	text, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", errors.Wrap(err, "decode %v", path)
	}

	return string(text), nil
}

// describe renders source errors with the offending line.
func describe(err error) string {
	var le *wgsl.LoweringError
	if errors.As(err, &le) {
		return le.FormatWithContext()
	}

	var se wgsl.SourceErrors
	if errors.As(err, &se) {
		return se.FormatAll()
	}

	var one *wgsl.SourceError
	if errors.As(err, &one) {
		return one.FormatWithContext()
	}

	return err.Error()
}
