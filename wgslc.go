// Package wgslc compiles WGSL shaders to SPIR-V.
//
// The pipeline has four stages, each available on its own:
//
//	Parse          WGSL text to AST
//	Lower          AST to IR, resolving types and overloads
//	Validate       IR consistency checks
//	GenerateSPIRV  IR to a SPIR-V binary
//
// Compile runs all of them:
//
//	spv, err := wgslc.Compile(source)
//
// Stages report to the tlog span found in the context passed to the
// Context variants.
package wgslc

import (
	"context"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/gogpu/wgslc/ir"
	"github.com/gogpu/wgslc/spirv"
	"github.com/gogpu/wgslc/wgsl"
)

// CompileOptions configures the whole pipeline.
type CompileOptions struct {
	Lower wgsl.Options  `yaml:"lower"`
	SPIRV spirv.Options `yaml:"spirv"`

	// Validate runs the IR validator between lowering and code generation.
	Validate bool `yaml:"validate"`
}

// DefaultOptions returns the options Compile uses.
func DefaultOptions() CompileOptions {
	opts := CompileOptions{
		Lower:    wgsl.DefaultOptions(),
		SPIRV:    spirv.DefaultOptions(),
		Validate: true,
	}

	// validated once here, not again by the backend
	opts.SPIRV.Validation = false

	return opts
}

// Source is one named shader for CompileAll.
type Source struct {
	Name string
	Text string
}

// Result is the outcome of compiling one Source.
type Result struct {
	Name   string
	SPIRV  []byte
	Module *ir.Module
	Err    error
}

// Compile compiles WGSL source code to SPIR-V with default options.
func Compile(source string) ([]byte, error) {
	return CompileWithOptions(source, DefaultOptions())
}

// CompileWithOptions compiles WGSL source code to SPIR-V.
func CompileWithOptions(source string, opts CompileOptions) ([]byte, error) {
	spv, _, err := CompileContext(context.Background(), source, opts)
	return spv, err
}

// CompileContext compiles source and also returns the lowered module.
func CompileContext(ctx context.Context, source string, opts CompileOptions) (spv []byte, module *ir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "wgslc: compile", "bytes", len(source))
	defer tr.Finish("err", &err)

	ast, err := Parse(source)
	if err != nil {
		return nil, nil, err
	}

	module, err = Lower(ctx, ast, source, opts.Lower)
	if err != nil {
		return nil, nil, err
	}

	if opts.Validate {
		if err = Validate(module); err != nil {
			return nil, module, err
		}
	}

	spv, err = GenerateSPIRV(ctx, module, opts.SPIRV)
	if err != nil {
		return nil, module, err
	}

	tr.Printw("compiled", "words", len(spv)/4, "functions", len(module.Functions), "entry_points", len(module.EntryPoints))

	return spv, module, nil
}

// CompileAll compiles independent sources concurrently, one pipeline
// per goroutine. Results are in the order of sources. A failure of one
// source is reported in its Result and does not stop the others;
// the returned error is set only when ctx is canceled.
func CompileAll(ctx context.Context, sources []Source, opts CompileOptions) ([]Result, error) {
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)

	for i, src := range sources {
		i, src := i, src // per-iteration copies; go.mod targets go 1.21
		results[i].Name = src.Name

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			r := &results[i]
			r.SPIRV, r.Module, r.Err = CompileContext(gctx, src.Text, opts)
			if r.Err != nil {
				r.Err = errors.Wrap(r.Err, "%v", src.Name)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, ctx.Err()
}

// Parse parses WGSL source code to an AST.
func Parse(source string) (*wgsl.Module, error) {
	ast, err := wgsl.Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	return ast, nil
}

// Lower converts an AST to IR. source is used to position errors.
func Lower(ctx context.Context, ast *wgsl.Module, source string, opts wgsl.Options) (*ir.Module, error) {
	module, err := wgsl.Lower(ctx, ast, source, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lower")
	}

	return module, nil
}

// Validate checks module and returns the first problem found.
func Validate(module *ir.Module) error {
	verrs, err := ir.Validate(module)
	if err != nil {
		return errors.Wrap(err, "validate")
	}

	if len(verrs) != 0 {
		return errors.Wrap(verrs[0], "validate (%d errors)", len(verrs))
	}

	return nil
}

// GenerateSPIRV generates a SPIR-V binary from module.
func GenerateSPIRV(ctx context.Context, module *ir.Module, opts spirv.Options) ([]byte, error) {
	spv, err := spirv.NewBackend(opts).CompileContext(ctx, module)
	if err != nil {
		return nil, errors.Wrap(err, "spirv")
	}

	return spv, nil
}
