// Package ssh provides the SSH transport used to reach managed hosts.
// Connections are dialed per operation from an address and the
// environment's credentials, so callers never hold connection state.
package ssh

import (
	"context"

	"github.com/openlift/openlift/pkg/environment"
)

// Transport defines the remote operations the lifecycle needs. Every
// call dials, performs the operation, and closes the connection.
type Transport interface {
	// TestConnectivity dials the host and runs a trivial command to
	// prove the credentials and the SSH daemon both work.
	TestConnectivity(ctx context.Context, address string, creds environment.SSHCredentials) error

	// ExecuteCommand runs a command on the remote host and returns its
	// combined output.
	ExecuteCommand(ctx context.Context, address string, creds environment.SSHCredentials, cmd string) (string, error)

	// UploadFile copies a local file to the remote host via SFTP.
	UploadFile(ctx context.Context, address string, creds environment.SSHCredentials, localPath, remotePath string) error

	// FileExists reports whether a regular file exists on the remote host.
	FileExists(ctx context.Context, address string, creds environment.SSHCredentials, remotePath string) (bool, error)
}

// TransportError represents a failure in the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g. "dial", "exec", "upload").
	Op string

	// Address is the host the operation targeted.
	Address string

	// Err is the underlying error.
	Err error

	// IsAuthError indicates the failure is an authentication rejection
	// rather than a reachability problem.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + " " + e.Address + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
