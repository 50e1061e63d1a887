package environment

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSSHPort is used when no port is supplied.
const DefaultSSHPort = 22

// SSHCredentials describe how to reach an environment's instance over SSH.
// The value is immutable once constructed; NewSSHCredentials performs all
// validation.
type SSHCredentials struct {
	// User is the remote login name.
	User string `json:"user"`

	// PrivateKeyPath is the absolute path to the private key file.
	PrivateKeyPath string `json:"private_key_path"`

	// Port is the SSH port on the instance.
	Port int `json:"port"`
}

// NewSSHCredentials validates and returns a credentials value. The key path
// is expanded to an absolute path and must exist on the operator machine.
func NewSSHCredentials(user, privateKeyPath string, port int) (SSHCredentials, error) {
	if user == "" {
		return SSHCredentials{}, &InvalidCredentialsError{Reason: "user is empty"}
	}
	if privateKeyPath == "" {
		return SSHCredentials{}, &InvalidCredentialsError{Reason: "private key path is empty"}
	}
	abs, err := filepath.Abs(privateKeyPath)
	if err != nil {
		return SSHCredentials{}, &InvalidCredentialsError{
			Reason: fmt.Sprintf("cannot resolve private key path %q: %v", privateKeyPath, err),
		}
	}
	if _, err := os.Stat(abs); err != nil {
		return SSHCredentials{}, &InvalidCredentialsError{
			Reason: fmt.Sprintf("private key %q is not readable: %v", abs, err),
		}
	}
	if port == 0 {
		port = DefaultSSHPort
	}
	if port < 0 || port > 65535 {
		return SSHCredentials{}, &InvalidCredentialsError{
			Reason: fmt.Sprintf("port %d is out of range", port),
		}
	}
	return SSHCredentials{User: user, PrivateKeyPath: abs, Port: port}, nil
}

// InvalidCredentialsError reports rejected SSH credentials.
type InvalidCredentialsError struct {
	// Reason is a human-readable description of the violation.
	Reason string
}

func (e *InvalidCredentialsError) Error() string {
	return "invalid ssh credentials: " + e.Reason
}

// RuntimeOutputs hold values that only exist once an instance does.
type RuntimeOutputs struct {
	// InstanceAddress is the network address (IP or hostname) of the
	// instance. Empty until the provision or register transition runs.
	InstanceAddress string `json:"instance_address,omitempty"`
}

// HasInstanceAddress reports whether provisioning or registration has
// recorded an address yet.
func (o RuntimeOutputs) HasInstanceAddress() bool {
	return o.InstanceAddress != ""
}
