// Package main is the entry point for the mod_coreclr c-shared library.
// Build with -buildmode=c-shared to create libmodcoreclr_go.so, which the
// native/mod_coreclr.c shim links against.
package main

import "C"

import (
	// Bridge exports all cgo functions to the shim
	_ "github.com/corrreia/modcoreclr/internal/bridge"
)

// main is required for c-shared build mode but is never called
func main() {}
