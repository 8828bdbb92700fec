package spirv

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// BoundsCheckPolicy chooses how an index that may be out of range is handled.
type BoundsCheckPolicy uint8

const (
	// BoundsCheckRestrict clamps the index to the last valid element.
	BoundsCheckRestrict BoundsCheckPolicy = iota

	// BoundsCheckReadZeroSkipWrite makes out-of-range loads produce zero
	// and out-of-range stores do nothing.
	BoundsCheckReadZeroSkipWrite

	// BoundsCheckUnchecked emits the access as is.
	BoundsCheckUnchecked
)

var boundsCheckNames = [...]string{
	BoundsCheckRestrict:          "restrict",
	BoundsCheckReadZeroSkipWrite: "read_zero_skip_write",
	BoundsCheckUnchecked:         "unchecked",
}

func (p BoundsCheckPolicy) String() string {
	if int(p) < len(boundsCheckNames) {
		return boundsCheckNames[p]
	}

	return fmt.Sprintf("policy(%d)", uint8(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p BoundsCheckPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *BoundsCheckPolicy) UnmarshalText(text []byte) error {
	s := strings.ReplaceAll(strings.ToLower(string(text)), "-", "_")

	for i, n := range boundsCheckNames {
		if n == s {
			*p = BoundsCheckPolicy(i)
			return nil
		}
	}

	return errors.New("unknown bounds check policy %q", text)
}

// BoundsCheckPolicies holds one policy per kind of access.
type BoundsCheckPolicies struct {
	// Index applies to arrays, vectors and matrices that are values or
	// live in function, private or workgroup memory.
	Index BoundsCheckPolicy `yaml:"index"`

	// Buffer applies to accesses through uniform and storage buffers.
	Buffer BoundsCheckPolicy `yaml:"buffer"`
}

// policyFor returns the policy governing an access rooted in the given storage class.
func (p BoundsCheckPolicies) policyFor(class StorageClass) BoundsCheckPolicy {
	switch class {
	case StorageClassUniform, StorageClassStorageBuffer:
		return p.Buffer
	default:
		return p.Index
	}
}

// Options configures SPIR-V generation.
type Options struct {
	// Version is the SPIR-V version to target
	Version Version `yaml:"version"`

	// Capabilities lists the capabilities the module may use.
	// Nil allows any capability.
	Capabilities []Capability `yaml:"capabilities"`

	// Debug includes OpName and OpMemberName debug information
	Debug bool `yaml:"debug"`

	// Validation runs the IR validator before generating code
	Validation bool `yaml:"validation"`

	BoundsChecks BoundsCheckPolicies `yaml:"bounds_checks"`

	// ForceLoopBounding makes every loop exit after 2^64 iterations.
	ForceLoopBounding bool `yaml:"force_loop_bounding"`

	// AdjustCoordinateSpace flips the Y of the vertex position output.
	AdjustCoordinateSpace bool `yaml:"adjust_coordinate_space"`

	// ClampFragDepth clamps the fragment depth output to [0, 1].
	ClampFragDepth bool `yaml:"clamp_frag_depth"`
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Version:    Version1_3,
		Validation: true,
		BoundsChecks: BoundsCheckPolicies{
			Index:  BoundsCheckRestrict,
			Buffer: BoundsCheckReadZeroSkipWrite,
		},
	}
}

// allows reports whether the options permit capability c.
func (o *Options) allows(c Capability) bool {
	if o.Capabilities == nil {
		return true
	}

	for _, x := range o.Capabilities {
		if x == c {
			return true
		}
	}

	return false
}
