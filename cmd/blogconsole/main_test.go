package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post.md")
	require.NoError(t, os.WriteFile(path, []byte("# Hello\n\nSome **bold** text"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runRender(path, &out))
	require.Contains(t, out.String(), "<h1>Hello</h1>")
	require.Contains(t, out.String(), "<strong>bold</strong>")
}

func TestRunRenderMissingFile(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, runRender(filepath.Join(t.TempDir(), "missing.md"), &out))
}
