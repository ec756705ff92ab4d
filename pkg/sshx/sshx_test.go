package sshx

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

func TestExcluded(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{"app/main.py", false},
		{"requirements.txt", false},
		{".git", true},
		{".git/objects/ab/cdef", true},
		{"venv", true},
		{"venv/bin/python", true},
		{"app/__pycache__", true},
		{"app/__pycache__/main.cpython-311.pyc", true},
		{".absdeploy/runs/run.json", true},
		{"terraform/main.tf", false},
		{".terraform/providers/x", true},
		{"terraform/terraform.tfstate", true},
		{"terraform/terraform.tfstate.backup", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded(tt.rel, DefaultExcludes))
		})
	}
}

func TestWriteTree(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string, mode os.FileMode) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), mode))
	}
	write("app/main.py", "print('ok')\n", 0o644)
	write("deploy.sh", "#!/bin/sh\n", 0o755)
	write(".git/HEAD", "ref: refs/heads/main\n", 0o644)
	write("venv/bin/python", "", 0o755)
	write("data/raw/work_absenteeism_raw.csv", "ID;Age\n1;30\n", 0o644)

	var buf bytes.Buffer
	require.NoError(t, WriteTree(&buf, root, DefaultExcludes))

	entries := map[string]*tar.Header{}
	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var payload string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
		if hdr.Name == "app/main.py" {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			payload = string(data)
		}
	}

	assert.Contains(t, entries, "app/main.py")
	assert.Contains(t, entries, "deploy.sh")
	assert.Contains(t, entries, "data/raw/work_absenteeism_raw.csv")
	assert.Equal(t, "print('ok')\n", payload)

	// Excluded trees are pruned whole.
	for name := range entries {
		assert.NotContains(t, name, ".git")
		assert.NotContains(t, name, "venv")
	}

	// Exec bit survives the round trip.
	require.Contains(t, entries, "deploy.sh")
	assert.NotZero(t, entries["deploy.sh"].Mode&0o100)
}

func TestNewClientKeyErrors(t *testing.T) {
	t.Run("missing key file", func(t *testing.T) {
		_, err := NewClient("10.0.0.1", "ubuntu", filepath.Join(t.TempDir(), "absent.pem"), zap.NewNop())
		require.Error(t, err)
		assert.True(t, apperrors.IsPrerequisite(err))
	})

	t.Run("unparsable key material", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

		_, err := NewClient("10.0.0.1", "ubuntu", keyPath, zap.NewNop())
		require.Error(t, err)
		assert.True(t, apperrors.IsPrerequisite(err))
	})
}

func TestWaitReachable(t *testing.T) {
	t.Run("open port succeeds", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = listener.Close() }()
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				_ = conn.Close()
			}
		}()

		c := &Client{addr: listener.Addr().String(), logger: zap.NewNop()}
		assert.NoError(t, c.WaitReachable(context.Background(), 3, 10*time.Millisecond))
	})

	t.Run("closed port exhausts the budget", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := listener.Addr().String()
		require.NoError(t, listener.Close())

		c := &Client{addr: addr, logger: zap.NewNop()}
		err = c.WaitReachable(context.Background(), 2, 10*time.Millisecond)
		require.Error(t, err)
		assert.True(t, apperrors.IsExternalService(err))
	})
}

func TestLineWriter(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	w := newLineWriter(zap.New(core), "remote")

	_, err := w.Write([]byte("first line\nsecond "))
	require.NoError(t, err)
	_, err = w.Write([]byte("half\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("trailing"))
	require.NoError(t, err)
	w.Flush()

	var messages []string
	for _, entry := range observed.All() {
		messages = append(messages, entry.Message)
	}
	assert.Equal(t, []string{
		"[remote] first line",
		"[remote] second half",
		"[remote] trailing",
	}, messages)
}
