package spirv

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

func TestOptionsYAML(t *testing.T) {
	opts := DefaultOptions()

	err := yaml.Unmarshal([]byte(`
version: 1.5
debug: true
capabilities: [Shader, imagequery, Float64]
bounds_checks:
  index: unchecked
  buffer: read-zero-skip-write
force_loop_bounding: true
`), &opts)
	require.NoError(t, err)

	assert.Equal(t, Version1_5, opts.Version)
	assert.True(t, opts.Debug)
	assert.True(t, opts.Validation, "kept from the defaults")
	assert.True(t, opts.ForceLoopBounding)
	assert.Equal(t, []Capability{CapabilityShader, CapabilityImageQuery, CapabilityFloat64}, opts.Capabilities)
	assert.Equal(t, BoundsCheckUnchecked, opts.BoundsChecks.Index)
	assert.Equal(t, BoundsCheckReadZeroSkipWrite, opts.BoundsChecks.Buffer)

	assert.True(t, opts.allows(CapabilityFloat64))
	assert.False(t, opts.allows(CapabilityInt64))
}

func TestOptionsYAMLErrors(t *testing.T) {
	for _, src := range []string{
		"version: 2.0",
		"version: 1",
		"bounds_checks: {index: clamp}",
		"capabilities: [NoSuchThing]",
	} {
		var opts Options
		assert.Error(t, yaml.Unmarshal([]byte(src), &opts), src)
	}
}

func TestBoundsCheckPolicyText(t *testing.T) {
	for _, p := range []BoundsCheckPolicy{BoundsCheckRestrict, BoundsCheckReadZeroSkipWrite, BoundsCheckUnchecked} {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var q BoundsCheckPolicy
		require.NoError(t, q.UnmarshalText(text))
		assert.Equal(t, p, q)
	}

	assert.Equal(t, "policy(9)", BoundsCheckPolicy(9).String())
}

func TestPolicyForStorageClass(t *testing.T) {
	p := BoundsCheckPolicies{Index: BoundsCheckRestrict, Buffer: BoundsCheckUnchecked}

	assert.Equal(t, BoundsCheckUnchecked, p.policyFor(StorageClassStorageBuffer))
	assert.Equal(t, BoundsCheckUnchecked, p.policyFor(StorageClassUniform))
	assert.Equal(t, BoundsCheckRestrict, p.policyFor(StorageClassFunction))
	assert.Equal(t, BoundsCheckRestrict, p.policyFor(StorageClassWorkgroup))
}

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, Version1_4.AtLeast(Version1_3))
	assert.True(t, Version1_4.AtLeast(Version1_4))
	assert.False(t, Version1_0.AtLeast(Version1_1))
	assert.Equal(t, "1.6", Version1_6.String())
}

func TestVersionErrorKeepsCause(t *testing.T) {
	var v Version

	err := v.UnmarshalText([]byte("1.x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, strconv.ErrSyntax), "%v", err)
	assert.Contains(t, err.Error(), `"1.x"`)
	assert.Equal(t, Version{}, v)

	var p BoundsCheckPolicy
	assert.ErrorContains(t, p.UnmarshalText([]byte("clamp")), `"clamp"`)
}
