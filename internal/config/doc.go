// Package config loads the admin gateway's YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing, so secrets such as the audit database password can stay out of
// the file.
package config
