package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SFTPTarget uploads recipes to an inbox directory over SFTP.
type SFTPTarget struct {
	name   string
	dir    string
	logger zerolog.Logger

	// connect opens an SFTP session for one push.
	connect func(ctx context.Context) (*sftp.Client, io.Closer, error)

	// shared is the client passed to NewSFTPTargetClient.
	shared *sftp.Client
}

// NewSFTPTarget creates a target uploading into dir on the host described
// by cfg. A connection is opened per push.
func NewSFTPTarget(name string, cfg SSHConfig, dir string, logger zerolog.Logger) (*SFTPTarget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config for target %s: %w", name, err)
	}

	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	addr := cfg.Address()

	t := newSFTPTarget(name, dir, logger)
	t.connect = func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		return dialSFTP(ctx, addr, clientConfig)
	}
	return t, nil
}

// NewSFTPTargetClient creates a target using an established SFTP client.
// The client is closed by Close.
func NewSFTPTargetClient(name string, client *sftp.Client, dir string, logger zerolog.Logger) *SFTPTarget {
	t := newSFTPTarget(name, dir, logger)
	t.shared = client
	t.connect = func(context.Context) (*sftp.Client, io.Closer, error) {
		return client, nopCloser{}, nil
	}
	return t
}

func newSFTPTarget(name, dir string, logger zerolog.Logger) *SFTPTarget {
	return &SFTPTarget{
		name:   name,
		dir:    dir,
		logger: logger.With().Str("target", name).Logger(),
	}
}

// dialSFTP connects to addr and starts an SFTP session. Closing the
// returned closer ends both.
func dialSFTP(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return client, sessionCloser{client, sshClient}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// sessionCloser closes an SFTP session and its SSH connection.
type sessionCloser struct {
	client *sftp.Client
	conn   *ssh.Client
}

func (c sessionCloser) Close() error {
	return errors.Join(c.client.Close(), c.conn.Close())
}

// Name returns the target name.
func (t *SFTPTarget) Name() string {
	return t.name
}

// Push uploads the recipe as <executionID>.xml.
func (t *SFTPTarget) Push(ctx context.Context, executionID string, recipe io.Reader) error {
	tmp, final, err := inboxNames(t.dir, executionID)
	if err != nil {
		return err
	}

	client, closer, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	if _, err := client.Stat(final); err == nil {
		return fmt.Errorf("execution %s was already pushed to %s", executionID, t.name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", final, err)
	}

	if err := client.MkdirAll(path.Clean(t.dir)); err != nil {
		return fmt.Errorf("failed to create remote inbox %s: %w", t.dir, err)
	}

	remoteFile, err := client.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := copyWithContext(ctx, remoteFile, recipe)
	if closeErr := remoteFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = client.Remove(tmp)
		return fmt.Errorf("failed to upload recipe: %w", err)
	}

	if err := client.Rename(tmp, final); err != nil {
		_ = client.Remove(tmp)
		return fmt.Errorf("failed to move recipe into remote inbox: %w", err)
	}

	t.logger.Info().
		Str("execution_id", executionID).
		Str("path", final).
		Int64("bytes", written).
		Msg("Recipe pushed")

	return nil
}

// Close releases a client passed to NewSFTPTargetClient.
func (t *SFTPTarget) Close() error {
	if t.shared != nil {
		return t.shared.Close()
	}
	return nil
}
