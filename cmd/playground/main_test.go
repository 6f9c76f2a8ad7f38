package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestModes(t *testing.T) {
	out, err := execute(t, "", "modes")
	require.NoError(t, err)
	assert.Contains(t, out, "MODE")
	assert.Contains(t, out, "express-ts")
	assert.Contains(t, out, "p5")
}

func TestStarter(t *testing.T) {
	out, err := execute(t, "", "starter", "express")
	require.NoError(t, err)
	assert.Contains(t, out, "express")

	_, err = execute(t, "", "starter", "cobol")
	assert.Error(t, err)
}

func TestDocumentToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p5.html")
	_, err := execute(t, "", "document", "p5", "--asset-base", "http://localhost:8000/assets", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<!DOCTYPE html>")
	assert.Contains(t, string(data), "http://localhost:8000/assets/p5")
}

func TestRunFromStdin(t *testing.T) {
	out, err := execute(t, "console.log('hi from stdin'); console.warn('careful');",
		"run", "--mode", "headless-js", "-f", "-", "--settle", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "[log] hi from stdin")
	assert.Contains(t, out, "[warn] careful")
}

func TestRunServerRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(path, []byte(`
const express = require('express');
const app = express();
app.get('/ping', (req, res) => res.json({ pong: true }));
app.listen(3000, () => console.log('listening'));
`), 0o644))

	out, err := execute(t, "", "run", "--mode", "express", "-f", path, "-r", "GET /ping", "-r", "/missing", "--settle", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "[log] listening")
	assert.Contains(t, out, `GET /ping -> 200 {"pong":true}`)
	assert.Contains(t, out, "GET /missing -> 404")
}

func TestRunRejectsBadRequestLine(t *testing.T) {
	_, err := execute(t, "", "run", "--mode", "express", "-f", "-", "-r", "not a request")
	assert.Error(t, err)
}

func TestRunXPath(t *testing.T) {
	out, err := execute(t, `document.getElementById('root').innerHTML = '<h2>Title</h2><p>body</p>';`,
		"run", "--mode", "dom", "-f", "-", "--settle", "100ms", "--xpath", "//h2")
	require.NoError(t, err)
	assert.Contains(t, out, "<h2>Title</h2>")
	assert.NotContains(t, out, "<p>body</p>")
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"a.js", "nested/b.ts", "nested/deep/c.tsx", "notes.md", "node_modules/lib/d.js"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("console.log('x')"), 0o644))
	}

	files, err := collect(context.Background(), root, "**/*.{js,ts,jsx,tsx}", []string{"**/node_modules/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "nested/b.ts", "nested/deep/c.tsx"}, files)

	files, err = collect(context.Background(), root, "nested/*", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/b.ts"}, files)

	_, err = collect(context.Background(), root, "[", nil)
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.js"), []byte(`console.log('fine')`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "typed.ts"), []byte(`const n: number = 2; console.log(n)`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.js"), []byte(`undefinedFunction()`), 0o644))

	out, err := execute(t, "", "batch", root)
	assert.Error(t, err)
	assert.Contains(t, out, "ok   good.js [headless-js]")
	assert.Contains(t, out, "ok   typed.ts [headless-ts]")
	assert.Contains(t, out, "FAIL bad.js [headless-js]")
	assert.Contains(t, out, "3 file(s), 1 failed")
}
