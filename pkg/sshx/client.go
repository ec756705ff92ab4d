// Package sshx provides the secure channel to the provisioned host: remote
// command execution and working-tree copy.
package sshx

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
	"github.com/absenteeism-ml/absdeploy/pkg/retry"
)

// Client connects to one remote host with key-based auth.
type Client struct {
	addr   string
	config *ssh.ClientConfig
	logger *zap.Logger
}

// NewClient builds a client for user@host using the private key at keyPath.
// A missing or unparsable key file is a prerequisite failure.
func NewClient(host, user, keyPath string, logger *zap.Logger) (*Client, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, apperrors.WrapPrerequisite(err, fmt.Sprintf("SSH key %s", keyPath))
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, apperrors.WrapPrerequisite(err, fmt.Sprintf("SSH key %s", keyPath))
	}

	return &Client{
		addr: net.JoinHostPort(host, "22"),
		config: &ssh.ClientConfig{
			User: user,
			Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
			// Freshly provisioned instances have unknown host keys.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Addr returns the target address.
func (c *Client) Addr() string { return c.addr }

// WaitReachable polls the SSH port until it accepts TCP connections. A fresh
// instance takes a while to finish booting; this is a transient-operational
// condition with bounded retry.
func (c *Client) WaitReachable(ctx context.Context, maxAttempts int, interval time.Duration) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	err := retry.Do(ctx, retry.Policy{MaxAttempts: maxAttempts, Interval: interval}, func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
	if err != nil {
		return apperrors.WrapExternal(err, "remote host "+c.addr)
	}
	return nil
}

// Run executes a command on the remote host, streaming its output through
// the logger line by line.
func (c *Client) Run(ctx context.Context, command string) error {
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

	stdout := newLineWriter(c.logger, "remote")
	stderr := newLineWriter(c.logger, "remote-err")
	session.Stdout = stdout
	session.Stderr = stderr

	// x/crypto/ssh sessions are not context-aware; closing the connection
	// unblocks Wait when the operator interrupts the deploy.
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return ctx.Err()
	case err := <-done:
		stdout.Flush()
		stderr.Flush()
		if err != nil {
			return apperrors.WrapExternal(err, fmt.Sprintf("remote command %q", command))
		}
		return nil
	}
}

// lineWriter splits a byte stream into lines and forwards them to the logger.
type lineWriter struct {
	logger *zap.Logger
	tag    string
	buf    bytes.Buffer
}

func newLineWriter(logger *zap.Logger, tag string) *lineWriter {
	return &lineWriter{logger: logger, tag: tag}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it buffered for the next write.
			w.buf.WriteString(line)
			break
		}
		w.logger.Info("[" + w.tag + "] " + line[:len(line)-1])
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.logger.Info("[" + w.tag + "] " + w.buf.String())
		w.buf.Reset()
	}
}
