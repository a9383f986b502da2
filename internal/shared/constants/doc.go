// Package constants centralizes defaults shared across the CLI and API.
//
// Storing file permissions, request limits, runner defaults and snapshot file
// names in one place keeps magic numbers out of cmd/ and internal/, and the
// values can be referenced from multiple packages without import cycles.
package constants
