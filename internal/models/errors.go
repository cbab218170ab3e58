package models

import "errors"

var (
	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("input not found")

	// ErrUnsupportedContent is returned when the input cannot be classified, a script defines none of
	// the recognized bindings, or a container misses a required document.
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrGeometryImport is returned when the kernel cannot produce a usable shape.
	ErrGeometryImport = errors.New("geometry import failure")

	// ErrNullShape is returned when the kernel reports a null or degenerate shape.
	// It always matches ErrGeometryImport.
	ErrNullShape = errors.Join(ErrGeometryImport, errors.New("null shape"))

	// ErrNetwork is returned when fetching a remote project fails.
	ErrNetwork = errors.New("network failure")
)
