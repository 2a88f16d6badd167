// Copyright 2025 OpenIAP ApS (https://openiap.io)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package native binds the OpenIAP core shared library through its C ABI.
//
// The package mirrors the ABI structs in Go, marshals strings and arrays
// into pinned Go memory for the duration of a call, and hands responses back
// as Blocks that must be released through the matching free export.
// Asynchronous exports complete on threads owned by the core; their
// responses are routed to the caller by request id.
package native

import "errors"

var (
	// ErrUnknownFunction is returned for an export name the binding does not
	// describe.
	ErrUnknownFunction = errors.New("native: unknown function")

	// ErrSymbolNotFound is returned when the loaded library lacks an export.
	ErrSymbolNotFound = errors.New("native: symbol not found")
)

// Library is the surface of the core used by the client.
//
// Call runs a synchronous export and returns its raw result: a pointer for
// exports returning a struct, the value itself for int32 results, zero for
// void exports.
//
// CallAsync runs an *_async export. The callback slot is filled by the
// library; args are every other argument in declaration order. done receives
// the response block for requestID exactly once, on a thread owned by the
// core, and owns releasing it.
//
// CallF64 runs a void export declared as (const char*, double, const
// char*), which the integer-only Call cannot reach.
//
// Free runs the named free export on ptr.
type Library interface {
	Call(fn string, args ...uintptr) (uintptr, error)
	CallF64(fn string, a uintptr, v float64, b uintptr) error
	CallAsync(fn string, requestID int32, done func(*Block), args ...uintptr) error
	Free(fn string, ptr uintptr)
	NextRequestID() int32
	Close() error
}

// FreeFunc returns a free callback bound to lib, suitable for NewBlock.
func FreeFunc(lib Library, fn string) func(uintptr) {
	return func(p uintptr) { lib.Free(fn, p) }
}
