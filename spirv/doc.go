// Package spirv generates SPIR-V binaries from IR modules.
//
// # Backend
//
// The Backend lowers a validated IR module to a Vulkan-flavoured
// SPIR-V module with the Logical addressing model and the GLSL450
// memory model:
//
//	backend := spirv.NewBackend(spirv.DefaultOptions())
//	binary, err := backend.Compile(module)
//
// Entry point arguments and results become Input and Output variables.
// Uniform and storage buffers whose type is not a struct are wrapped in
// a one-member Block struct. Index and buffer accesses are guarded
// according to Options.BoundsChecks:
//
//	restrict              clamp the index to the last element
//	read_zero_skip_write  loads of a bad index yield zero, stores are skipped
//	unchecked             emit the access as written
//
// Capabilities the module needs are collected while generating code.
// When Options.Capabilities is set, needing anything outside it fails
// with an error matching ErrMissingCapability.
//
// # Binary writer
//
// ModuleBuilder assembles a module section by section and lays the
// sections out in the order the SPIR-V specification requires, whatever
// order they were added in:
//
//	builder := spirv.NewModuleBuilder(spirv.Version1_3)
//	builder.AddCapability(spirv.CapabilityShader)
//	builder.SetMemoryModel(spirv.AddressingModelLogical, spirv.MemoryModelGLSL450)
//	f32 := builder.AddTypeFloat(32)
//	vec4 := builder.AddTypeVector(f32, 4)
//	binary := builder.Build()
//
// # Disassembler
//
// Disassemble decodes a binary back into instructions, checking word
// counts and result ids. Module.String prints it in spirv-dis form.
//
// SPIR-V Specification: https://registry.khronos.org/SPIR-V/specs/unified1/SPIRV.html
package spirv
