package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/docs", "/docs"},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{"//docs///report.pdf", "/docs/report.pdf"},
	}
	for _, tc := range cases {
		got, err := CleanPath(tc.in)
		require.NoError(t, err, "CleanPath(%q)", tc.in)
		require.Equal(t, tc.want, got, "CleanPath(%q)", tc.in)
	}

	for _, bad := range []string{"/docs/../etc", "/.", "/docs/./x", "/a\x00b"} {
		_, err := CleanPath(bad)
		require.Error(t, err, "CleanPath(%q)", bad)
		require.True(t, IsCode(err, ErrInvalidArgument))
	}
}

func TestSplitAndJoin(t *testing.T) {
	segments, err := SplitPath("/docs/report.pdf")
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "report.pdf"}, segments)

	segments, err = SplitPath("/")
	require.NoError(t, err)
	require.Empty(t, segments)

	require.Equal(t, "/docs", JoinPath("/", "docs"))
	require.Equal(t, "/docs/report.pdf", JoinPath("/docs", "report.pdf"))
}

func TestParentAndBase(t *testing.T) {
	require.Equal(t, "/docs", ParentPath("/docs/report.pdf"))
	require.Equal(t, "/", ParentPath("/docs"))
	require.Equal(t, "/", ParentPath("/"))

	require.Equal(t, "report.pdf", BaseName("/docs/report.pdf"))
	require.Equal(t, "docs", BaseName("/docs"))
	require.Equal(t, "", BaseName("/"))
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("report.pdf"))
	require.NoError(t, ValidateName("..."))

	for _, bad := range []string{"", ".", "..", "a/b", "a\x00b"} {
		require.Error(t, ValidateName(bad), "ValidateName(%q)", bad)
	}
}

func TestPathWithin(t *testing.T) {
	require.True(t, PathWithin("/docs/report.pdf", "/docs"))
	require.True(t, PathWithin("/docs", "/docs"))
	require.True(t, PathWithin("/anything", "/"))
	require.True(t, PathWithin("/anything", ""))

	// Sibling prefix is not containment.
	require.False(t, PathWithin("/docs-old/report.pdf", "/docs"))
	require.False(t, PathWithin("/pics/cat.jpg", "/docs"))
}
