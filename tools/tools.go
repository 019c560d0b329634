//go:build tools

// Package tools documents development tool dependencies.
// Tools are run with `go run module@version` from go:generate directives, so they
// are not tracked in go.mod.
package tools

// mockgen - gomock generator for the port interfaces in internal/ports
//   Used by: internal/mocks/generate.go
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.uber.org/mock in go.mod)
//   Run:     go generate ./internal/mocks
