//go:build tools

// Package tools tracks go:generate tool dependencies in go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
