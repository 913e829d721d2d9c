package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

func sanitize(t *testing.T, raw string) pathutil.SanitizedLocalPath {
	t.Helper()

	p, err := pathutil.Sanitize(raw)
	require.NoError(t, err)

	return p
}

// TestScenario1RuleExclusion covers config rules
// [NameEquals("target"), NameMatches("^build_")] leaving only a.txt.
func TestScenario1RuleExclusion(t *testing.T) {
	dir := t.TempDir()

	nameMatches, err := NameMatches(`^build_`)
	require.NoError(t, err)

	rs := New([]Rule{NameEquals("target"), nameMatches})

	cases := map[string]bool{
		dir + "/a.txt":          false,
		dir + "/target":         true,
		dir + "/target/x":       false, // only the final segment is checked
		dir + "/build_out":      true,
		dir + "/build_out/y":    false,
		dir + "/other/target":   true,
		dir + "/other/build_z":  true,
		dir + "/otherbuild_out": false,
	}

	for raw, want := range cases {
		p := sanitize(t, raw)
		assert.Equal(t, want, rs.IsExcluded(p), "path=%s", raw)
	}
}

func TestIsExcludedIsPure(t *testing.T) {
	rs := New([]Rule{NameEquals("secret")})
	p := sanitize(t, "/tmp/secret")

	a := rs.IsExcluded(p)
	b := rs.IsExcluded(p)
	assert.Equal(t, a, b)
	assert.True(t, a)
}

func TestPathEqualsAndPathMatches(t *testing.T) {
	p := sanitize(t, "/tmp/a/b.txt")

	rs := New([]Rule{PathEquals(p.String())})
	assert.True(t, rs.IsExcluded(p))

	pm, err := PathMatches(`\.txt$`)
	require.NoError(t, err)

	rs2 := New([]Rule{pm})
	assert.True(t, rs2.IsExcluded(p))

	other := sanitize(t, "/tmp/a/b.bin")
	assert.False(t, rs2.IsExcluded(other))
}

func TestGlobalThenMountLayering(t *testing.T) {
	global := []Rule{NameEquals("global_exclude")}
	mount := []Rule{NameEquals("mount_exclude")}

	rs := New(global, mount)

	assert.True(t, rs.IsExcluded(sanitize(t, "/tmp/global_exclude")))
	assert.True(t, rs.IsExcluded(sanitize(t, "/tmp/mount_exclude")))
	assert.False(t, rs.IsExcluded(sanitize(t, "/tmp/keep.txt")))
}
