package wgsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func TestConstAssertions(t *testing.T) {
	for _, cond := range []string{
		"1 + 2 * 3 == 7",
		"7 / 2 == 3",
		"-7 % 3 == -1",
		"(1 << 4u) == 16",
		"(0xff & 0x0f) == 15",
		"1.5 * 2.0 == 3.0",
		"1 < 2.5",
		"min(3, 4) == 3",
		"max(3u, 4u) == 4u",
		"clamp(10, 0, 5) == 5",
		"abs(-4) == 4",
		"select(1, 2, true) == 2",
		"vec3<i32>(1, 2, 3).y == 2",
		"!(false && (1 / 0 == 0))",
		"true || (1 / 0 == 0)",
		"~0 == -1",
	} {
		t.Run(cond, func(t *testing.T) {
			_, err := lowerSource("const_assert "+cond+";", DefaultOptions())
			assert.NoError(t, err)
		})
	}
}

func TestConstEvalErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind ErrorKind
	}{
		{"const_assert 1 == 2;", ErrConstAssertFailed},
		{"const_assert 1;", ErrTypeMismatch},
		{"const_assert 1 / 0 == 0;", ErrOverflow},
		{"const_assert (2147483647i + 1i) > 0;", ErrOverflow},
		{"const_assert -1u == 0u;", ErrTypeMismatch},
		{"const_assert (1i << 32u) == 0;", ErrOverflow},
		{"const_assert vec2<i32>(1, 2).z == 0;", ErrBadAccessor},
		{"const_assert sqrt(4.0) == 2.0;", ErrNotConstant},
		{"const_assert min(1, true);", ErrInconsistentArgumentType},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := lowerSource(tt.src, DefaultOptions())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "%v", err)
		})
	}
}
