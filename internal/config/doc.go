// Package config loads the walletd configuration from a JSON or YAML file
// and fills in defaults for every section left empty.
package config
