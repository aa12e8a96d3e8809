// File: shm/shm.go
// Package shm creates, names, and maps the POSIX shared-memory objects (or
// Windows file mappings) backing a stream's tx/rx rings.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

import (
	"fmt"
	"regexp"
	"strings"
)

// Direction identifies which ring of a stream an object backs.
type Direction string

const (
	TX Direction = "tx"
	RX Direction = "rx"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// sanitizeBase strips path separators and anything else that would not
// survive as a shm_open/CreateFileMapping name component, per the naming
// rule: derive from a sanitized base + slot + nonce, produce a
// platform-legal string at the single point of object creation.
func sanitizeBase(base string) string {
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")
	base = invalidNameChars.ReplaceAllString(base, "_")
	if base == "" {
		base = "shmipc"
	}
	return base
}

// Name derives the deterministic shared-memory object name for a given
// base, slot, nonce and direction: base.slot.nonce.(tx|rx). The leading
// slash POSIX shm_open requires is added by the platform-specific Create.
func Name(base string, slot uint32, nonce uint64, dir Direction) string {
	return fmt.Sprintf("%s.%d.%x.%s", sanitizeBase(base), slot, nonce, dir)
}

// Object is a mapped shared-memory region plus the bookkeeping needed to
// unmap and unlink it.
type Object struct {
	Name   string
	Region []byte

	closer func() error
}

// Close unmaps the region. The last holder (tracked by the caller, not by
// Object itself) is responsible for calling Unlink as well.
func (o *Object) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer()
}
