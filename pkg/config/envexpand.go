package config

import "os"

// ExpandEnv expands environment variables in raw config bytes using
// Go's standard shell-style syntax. Supports both ${VAR} and $VAR.
//
// Missing variables expand to the empty string; Validate catches
// required fields left empty by a missing variable.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
