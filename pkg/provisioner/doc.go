// Package provisioner defines the interface the lifecycle handlers need
// from an infrastructure provisioner, plus the Terraform CLI adapter
// that implements it by shelling out to the terraform binary in an
// environment's build directory.
package provisioner
