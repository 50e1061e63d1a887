package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/openlift/openlift/pkg/environment"
)

const (
	// DefaultDialTimeout bounds the TCP and handshake phase of a dial.
	DefaultDialTimeout = 15 * time.Second
)

// Client implements Transport over golang.org/x/crypto/ssh with SFTP
// for file transfer. Host keys are not verified: provisioned hosts have
// fresh keys that no known_hosts file could anticipate.
type Client struct {
	// DialTimeout bounds connection establishment (default 15s).
	DialTimeout time.Duration
}

// NewClient creates a transport with default timeouts.
func NewClient() *Client {
	return &Client{DialTimeout: DefaultDialTimeout}
}

// buildClientConfig turns environment credentials into an SSH client
// config with public key authentication.
func (c *Client) buildClientConfig(creds environment.SSHCredentials) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(creds.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", creds.PrivateKeyPath, err)
	}

	return &ssh.ClientConfig{
		User:            creds.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.DialTimeout,
	}, nil
}

// dial opens a connection honoring ctx cancellation during the
// handshake.
func (c *Client) dial(ctx context.Context, address string, creds environment.SSHCredentials) (*ssh.Client, error) {
	clientConfig, err := c.buildClientConfig(creds)
	if err != nil {
		return nil, &TransportError{Op: "dial", Address: address, Err: err, IsAuthError: true}
	}

	target := net.JoinHostPort(address, fmt.Sprintf("%d", creds.Port))
	log.Debug().Str("target", target).Str("user", creds.User).Msg("dialing SSH")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", target, clientConfig)
		ch <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{Op: "dial", Address: address, Err: ctx.Err()}
	case res := <-ch:
		if res.err != nil {
			return nil, &TransportError{
				Op:          "dial",
				Address:     address,
				Err:         res.err,
				IsAuthError: isAuthFailure(res.err),
			}
		}
		return res.client, nil
	}
}

// isAuthFailure distinguishes rejected credentials from unreachable hosts.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied")
}

// TestConnectivity implements Transport.
func (c *Client) TestConnectivity(ctx context.Context, address string, creds environment.SSHCredentials) error {
	_, err := c.ExecuteCommand(ctx, address, creds, "true")
	return err
}

// ExecuteCommand implements Transport.
func (c *Client) ExecuteCommand(ctx context.Context, address string, creds environment.SSHCredentials, cmd string) (string, error) {
	client, err := c.dial(ctx, address, creds)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &TransportError{Op: "exec", Address: address, Err: err}
	}
	defer session.Close()

	var buf bytes.Buffer
	session.Stdout = &buf
	session.Stderr = &buf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return buf.String(), &TransportError{Op: "exec", Address: address, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return buf.String(), &TransportError{Op: "exec", Address: address, Err: err}
		}
		return buf.String(), nil
	}
}

// UploadFile implements Transport.
func (c *Client) UploadFile(ctx context.Context, address string, creds environment.SSHCredentials, localPath, remotePath string) error {
	client, err := c.dial(ctx, address, creds)
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Address: address, Err: err}
	}
	defer sftpClient.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Address: address, Err: err}
	}
	defer src.Close()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Address: address, Err: err}
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return &TransportError{Op: "upload", Address: address, Err: err}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", n).
		Msg("uploaded file")
	return nil
}

// FileExists implements Transport. A missing file is a false result,
// not an error; only transport failures return errors.
func (c *Client) FileExists(ctx context.Context, address string, creds environment.SSHCredentials, remotePath string) (bool, error) {
	client, err := c.dial(ctx, address, creds)
	if err != nil {
		return false, err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return false, &TransportError{Op: "stat", Address: address, Err: err}
	}
	defer sftpClient.Close()

	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &TransportError{Op: "stat", Address: address, Err: err}
	}
	return info.Mode().IsRegular(), nil
}
