//go:build tools
// +build tools

// Package tools pins the code generators invoked through go generate so that
// go.mod keeps them as explicit dependencies.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
