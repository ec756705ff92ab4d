package sshx

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

// DefaultExcludes covers artifacts that must not travel to the remote host:
// VCS metadata, local virtualenvs, bytecode caches and local run state. The
// remote pipeline rebuilds its own environment from the copied sources.
var DefaultExcludes = []string{
	".git",
	".git/**",
	"venv",
	"venv/**",
	".venv",
	".venv/**",
	"**/__pycache__",
	"**/__pycache__/**",
	".absdeploy",
	".absdeploy/**",
	".terraform",
	".terraform/**",
	"**/*.tfstate*",
}

// Excluded reports whether the slash-separated relative path matches any of
// the exclude patterns.
func Excluded(rel string, excludes []string) bool {
	for _, pattern := range excludes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// CopyTree streams the local working tree to remoteDir on the host as a
// gzipped tar extracted in place. Paths matching the exclude patterns are
// skipped; excluded directories are pruned whole.
func (c *Client) CopyTree(ctx context.Context, localRoot, remoteDir string, excludes []string) error {
	client, err := ssh.Dial("tcp", c.addr, c.config)
	if err != nil {
		return apperrors.WrapExternal(err, "SSH dial "+c.addr)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return apperrors.WrapExternal(err, "SSH session")
	}
	defer func() { _ = session.Close() }()

	stdin, err := session.StdinPipe()
	if err != nil {
		return apperrors.WrapExternal(err, "SSH stdin pipe")
	}
	stderr := newLineWriter(c.logger, "remote-err")
	session.Stderr = stderr

	cmd := fmt.Sprintf("mkdir -p %q && tar -xzf - -C %q", remoteDir, remoteDir)
	if err := session.Start(cmd); err != nil {
		return apperrors.WrapExternal(err, "remote extract")
	}

	streamErr := WriteTree(stdin, localRoot, excludes)
	_ = stdin.Close()

	waitErr := session.Wait()
	stderr.Flush()
	if streamErr != nil {
		return streamErr
	}
	if waitErr != nil {
		return apperrors.WrapExternal(waitErr, "remote extract")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("Copied working tree to remote host",
		zap.String("remote_dir", remoteDir))
	return nil
}

// WriteTree writes root as a gzipped tar stream to w, skipping excluded
// paths. Only regular files and directories are archived; file mode bits are
// preserved so scripts stay executable.
func WriteTree(w io.Writer, root string, excludes []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if Excluded(rel, excludes) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		_ = f.Close()
		return err
	})
	if err != nil {
		return fmt.Errorf("archive working tree: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive working tree: %w", err)
	}
	return gz.Close()
}
