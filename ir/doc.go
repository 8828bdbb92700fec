// Package ir defines the intermediate representation shared by the WGSL
// front end and the SPIR-V back end.
//
// # Structure
//
// A Module owns append-only arenas:
//   - Types: structurally deduplicated type declarations
//   - Constants and Overrides: module-scope values
//   - GlobalVariables: uniforms, storage buffers, textures, workgroup memory
//   - Functions: helper functions, called by handle
//   - EntryPoints: shader stages, each owning its own Function
//
// Every cross reference is a Handle, an integer index into one of those
// arenas. A Function additionally owns an Expression arena; expressions and
// statements only ever refer to expression handles inserted before them, so
// the graph is acyclic by construction.
//
// # Evaluation timing
//
// Expressions are pure. They become visible to statements only after an
// Emit statement covering their handle range, which fixes the point in
// control flow where they are evaluated. Literals, constants, variable
// references, function arguments and zero values never need an Emit.
//
// # Types of expressions
//
// The type of each expression is computed lazily by a Typifier and recorded
// in Function.ExpressionTypes once the function is complete.
package ir
