package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRejectsEmptyAndNUL(t *testing.T) {
	_, err := Sanitize("")
	require.Error(t, err)

	_, err = Sanitize("/tmp/has\x00nul")
	require.Error(t, err)
}

func TestSanitizeAbsoluteAndIdempotent(t *testing.T) {
	dir := t.TempDir()

	p1, err := Sanitize(dir + "/a/../a/./b")
	require.NoError(t, err)

	p2, err := Sanitize(p1.String())
	require.NoError(t, err)

	assert.Equal(t, p1.String(), p2.String())
}

func TestRelativeToDescendant(t *testing.T) {
	root, err := Sanitize("/tmp/root")
	require.NoError(t, err)

	child, err := Sanitize("/tmp/root/a/b")
	require.NoError(t, err)

	segs, err := child.RelativeTo(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, segs)

	notChild, err := Sanitize("/tmp/other")
	require.NoError(t, err)

	_, err = notChild.RelativeTo(root)
	require.Error(t, err)
}

func TestNativeToArchiveRelativeRejectsReserved(t *testing.T) {
	_, err := NativeToArchiveRelative([]string{"a", ".."})
	require.Error(t, err)

	_, err = NativeToArchiveRelative([]string{"a", "b/c"})
	require.Error(t, err)

	joined, err := NativeToArchiveRelative([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a/b", joined)
}

func TestArchivePathParseAndString(t *testing.T) {
	p, err := ParseArchivePath("ar:/my_files/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"my_files", "report.pdf"}, p.Segments())
	assert.Equal(t, "ar:/my_files/report.pdf", p.String())

	root, err := ParseArchivePath("ar:/")
	require.NoError(t, err)
	assert.Equal(t, "ar:/", root.String())

	_, err = ParseArchivePath("ar:/a/./b")
	require.Error(t, err)

	_, err = ParseArchivePath("/no/scheme")
	require.Error(t, err)
}

func TestArchivePathJoinParentStartsWith(t *testing.T) {
	base, err := ParseArchivePath("ar:/docs")
	require.NoError(t, err)

	child, err := base.Join("a", "b")
	require.NoError(t, err)
	assert.Equal(t, "ar:/docs/a/b", child.String())

	parent, ok := child.Parent()
	require.True(t, ok)
	assert.Equal(t, "ar:/docs/a", parent.String())

	assert.True(t, child.StartsWith(base))
	assert.False(t, base.StartsWith(child))

	rel, err := child.RelativeTo(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rel)
}
