// Package wgsl parses WGSL (WebGPU Shading Language) and lowers it to the
// ir package's shader module.
//
// # Pipeline
//
//   - Lexer: turns source text into tokens
//   - Parser: builds the AST from tokens
//   - Lowerer: orders module-scope declarations by dependency, evaluates
//     constant expressions, resolves builtin overloads and emits the IR
//
// # Usage
//
//	ast, err := wgsl.Parse(source)
//	if err != nil {
//	    return err
//	}
//
//	module, err := wgsl.Lower(ctx, ast, source, wgsl.DefaultOptions())
//	if err != nil {
//	    var le *wgsl.LoweringError
//	    if errors.As(err, &le) {
//	        fmt.Println(le.FormatWithContext())
//	    }
//	    return err
//	}
//
// # Abstract values
//
// Integer and float literals without a suffix are abstract. They stay
// abstract through constant evaluation and become i32 or f32 (or
// whatever type the context asks for) when a runtime value is needed.
// Only negation of a literal is folded in runtime code, so that the
// most negative integers can be written.
//
// # Errors
//
// Lowering stops at the first error. Every error is a *LoweringError
// whose Kind can be matched with errors.Is against the Err* kinds.
//
// See https://www.w3.org/TR/WGSL/ for the language.
package wgsl
