package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/shelf/pkg/core"
)

// buildShelfBinary builds the shelf binary into dir and returns its path.
func buildShelfBinary(t *testing.T, dir string) string {
	t.Helper()
	bin := filepath.Join(dir, "shelf.exe")
	buildCmd := exec.Command("go", "build", "-o", bin, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build shelf: %v\n%s", err, string(out))
	}
	return bin
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func runCLI(t *testing.T, dir, bin string, args ...string) string {
	t.Helper()
	var stdout bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("Command shelf %v failed in %s: %v", args, dir, err)
	}
	return stdout.String()
}

func TestCLI_EditAndShow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	tmpDir := t.TempDir()
	bin := buildShelfBinary(t, tmpDir)
	addr := freeAddr(t)

	config := fmt.Sprintf(`server:
  addr: %s
  data_dir: data
  save_interval: 50ms
client:
  server_url: ws://%s/ws
  data_dir: cache
`, addr, addr)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "shelf.yaml"), []byte(config), 0644))

	server := exec.Command(bin, "serve")
	server.Dir = tmpDir
	server.Stderr = os.Stderr
	require.NoError(t, server.Start())
	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		_ = server.Process.Signal(os.Interrupt)
		_ = server.Wait()
	}
	t.Cleanup(stop)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	runCLI(t, tmpDir, bin, "add", "folder", "--id", "reading", "Reading")
	runCLI(t, tmpDir, bin, "add", "item", "--id", "a", "Alpha")
	runCLI(t, tmpDir, bin, "add", "item", "--id", "b", "--icon", "arrow-up", "--folder", "reading", "Beta")
	runCLI(t, tmpDir, bin, "move", "a", "reading")
	runCLI(t, tmpDir, bin, "move", "b", "a")
	runCLI(t, tmpDir, bin, "toggle", "reading")

	var shown core.Document
	require.Eventually(t, func() bool {
		doc, err := core.DecodeDocument([]byte(runCLI(t, tmpDir, bin, "show", "--json")))
		if err != nil {
			return false
		}
		shown = doc
		f, _ := doc.Folder("reading")
		return len(doc.ItemsIn("reading")) == 2 && !f.IsOpen
	}, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, []string{"b", "a"}, shown.ItemsIn("reading"))

	assert.Contains(t, runCLI(t, tmpDir, bin, "show"), "Reading")

	runCLI(t, tmpDir, bin, "remove", "reading")
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		doc, err := core.DecodeDocument(data)
		return err == nil && len(doc.Folders) == 0
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	data, err := os.ReadFile(filepath.Join(tmpDir, "data", "state.json"))
	require.NoError(t, err)
	saved, err := core.DecodeDocument(data)
	require.NoError(t, err)
	assert.Empty(t, saved.Folders)
	assert.Equal(t, []string{"b", "a"}, saved.ItemsIn(""), "items of a removed folder go to root")
}
