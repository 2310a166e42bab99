package deploy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const testRecipe = `<Orchard><Settings><SiteSettingsPart PageSize="20"/></Settings></Orchard>`

func TestLocalTargetPush(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := NewLocalTarget("staging", fs, "/srv/inbox", zerolog.Nop())
	assert.Equal(t, "staging", target.Name())

	id := uuid.NewString()
	require.NoError(t, target.Push(context.Background(), id, strings.NewReader(testRecipe)))

	data, err := afero.ReadFile(fs, "/srv/inbox/"+id+".xml")
	require.NoError(t, err)
	assert.Equal(t, testRecipe, string(data))

	entries, err := afero.ReadDir(fs, "/srv/inbox")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	err = target.Push(context.Background(), id, strings.NewReader(testRecipe))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already pushed")

	require.NoError(t, target.Close())
}

func TestLocalTargetRejectsInvalidID(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := NewLocalTarget("staging", fs, "/srv/inbox", zerolog.Nop())

	for _, id := range []string{"", "../escape", "not-a-uuid"} {
		err := target.Push(context.Background(), id, strings.NewReader(testRecipe))
		assert.Error(t, err, "id %q", id)
	}

	exists, err := afero.DirExists(fs, "/srv/inbox")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalTargetCancelledPush(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := NewLocalTarget("staging", fs, "/srv/inbox", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := target.Push(ctx, uuid.NewString(), strings.NewReader(testRecipe))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := afero.ReadDir(fs, "/srv/inbox")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPushFile(t *testing.T) {
	src := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(src, "/recipes/site.xml", []byte(testRecipe), 0o644))

	dst := afero.NewMemMapFs()
	target := NewLocalTarget("staging", dst, "/inbox", zerolog.Nop())

	id := uuid.NewString()
	require.NoError(t, PushFile(context.Background(), target, src, id, "/recipes/site.xml"))

	data, err := afero.ReadFile(dst, "/inbox/"+id+".xml")
	require.NoError(t, err)
	assert.Equal(t, testRecipe, string(data))

	assert.Error(t, PushFile(context.Background(), target, src, uuid.NewString(), "/recipes/missing.xml"))
}

// newInMemSFTP starts an in-memory SFTP server and returns a client for it.
func newInMemSFTP(t *testing.T) *sftp.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	return client
}

func TestSFTPTargetPush(t *testing.T) {
	client := newInMemSFTP(t)
	target := NewSFTPTargetClient("production", client, "/srv/inbox", zerolog.Nop())
	t.Cleanup(func() { _ = target.Close() })

	id := uuid.NewString()
	require.NoError(t, target.Push(context.Background(), id, strings.NewReader(testRecipe)))

	f, err := client.Open("/srv/inbox/" + id + ".xml")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, testRecipe, string(data))

	_, err = client.Stat("/srv/inbox/." + id + ".xml.tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = target.Push(context.Background(), id, strings.NewReader(testRecipe))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already pushed")
}

func TestSFTPTargetRejectsInvalidID(t *testing.T) {
	target := NewSFTPTargetClient("production", newInMemSFTP(t), "/srv/inbox", zerolog.Nop())
	t.Cleanup(func() { _ = target.Close() })

	err := target.Push(context.Background(), "recipe", strings.NewReader(testRecipe))
	assert.Error(t, err)
}

func writeTestKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return path, sshPub
}

func TestSSHConfigValidate(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	tests := []struct {
		name    string
		cfg     SSHConfig
		wantErr string
	}{
		{
			name: "password",
			cfg:  SSHConfig{Host: "example.com", User: "deploy", AuthMethod: AuthMethodPassword, Password: "secret"},
		},
		{
			name: "key",
			cfg:  SSHConfig{Host: "example.com", User: "deploy", PrivateKeyPath: keyPath},
		},
		{
			name:    "missing host",
			cfg:     SSHConfig{User: "deploy", AuthMethod: AuthMethodPassword, Password: "secret"},
			wantErr: "host is required",
		},
		{
			name:    "missing user",
			cfg:     SSHConfig{Host: "example.com", AuthMethod: AuthMethodPassword, Password: "secret"},
			wantErr: "user is required",
		},
		{
			name:    "missing password",
			cfg:     SSHConfig{Host: "example.com", User: "deploy", AuthMethod: AuthMethodPassword},
			wantErr: "password is required",
		},
		{
			name:    "missing key file",
			cfg:     SSHConfig{Host: "example.com", User: "deploy", PrivateKeyPath: "/nonexistent/key"},
			wantErr: "private key file not found",
		},
		{
			name:    "invalid port",
			cfg:     SSHConfig{Host: "example.com", Port: 70000, User: "deploy", PrivateKeyPath: keyPath},
			wantErr: "invalid port",
		},
		{
			name:    "unsupported auth",
			cfg:     SSHConfig{Host: "example.com", User: "deploy", AuthMethod: "agent"},
			wantErr: "unsupported auth method",
		},
		{
			name:    "strict without known hosts",
			cfg:     SSHConfig{Host: "example.com", User: "deploy", PrivateKeyPath: keyPath, StrictHostKeyChecking: true},
			wantErr: "known_hosts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSSHConfigClientConfig(t *testing.T) {
	keyPath, hostKey := writeTestKey(t)

	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize("example.com:2222")}, hostKey)
	require.NoError(t, os.WriteFile(knownHostsPath, []byte(line+"\n"), 0o600))

	cfg := SSHConfig{
		Host:                  "example.com",
		Port:                  2222,
		User:                  "deploy",
		PrivateKeyPath:        keyPath,
		KnownHostsPath:        knownHostsPath,
		StrictHostKeyChecking: true,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "example.com:2222", cfg.Address())

	clientConfig, err := cfg.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "deploy", clientConfig.User)
	assert.Len(t, clientConfig.Auth, 1)

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 2222}
	assert.NoError(t, clientConfig.HostKeyCallback("example.com:2222", addr, hostKey))

	_, otherKey := writeTestKey(t)
	assert.Error(t, clientConfig.HostKeyCallback("example.com:2222", addr, otherKey))
}

func TestSSHConfigDefaults(t *testing.T) {
	cfg := SSHConfig{Host: "example.com", User: "deploy", AuthMethod: AuthMethodPassword, Password: "secret"}
	assert.Equal(t, "example.com:22", cfg.Address())

	clientConfig, err := cfg.ClientConfig()
	require.NoError(t, err)
	assert.Len(t, clientConfig.Auth, 2)
	assert.NotZero(t, clientConfig.Timeout)
}

func TestNewTarget(t *testing.T) {
	target, err := New(TargetConfig{Name: "local", Type: TypeLocal, Path: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalTarget{}, target)

	target, err = New(TargetConfig{
		Name: "remote",
		Type: TypeSFTP,
		Path: "/srv/inbox",
		SSH:  &SSHConfig{Host: "example.com", User: "deploy", AuthMethod: AuthMethodPassword, Password: "secret"},
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SFTPTarget{}, target)

	_, err = New(TargetConfig{Name: "remote", Type: TypeSFTP, Path: "/srv/inbox"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(TargetConfig{Name: "ftp", Type: "ftp", Path: "/srv/inbox"}, zerolog.Nop())
	assert.Error(t, err)
}
