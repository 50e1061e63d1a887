// Package configtool drives the external configuration management tool
// that turns a freshly provisioned host into a configured one. The CLI
// adapter shells out to ansible-playbook with an ephemeral inline
// inventory built from the environment's SSH credentials.
package configtool
