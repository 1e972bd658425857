package repository

import "errors"

var (
	// ErrStale is returned when a conditional update matched no row because
	// another writer changed it first.
	ErrStale = errors.New("row changed concurrently")
	// ErrInUse is returned when deleting a row that other rows still reference.
	ErrInUse = errors.New("row is still referenced")
	// ErrParentNotFound is returned when a reply names a missing parent comment.
	ErrParentNotFound = errors.New("parent comment not found")
	// ErrParentMismatch is returned when a reply's parent belongs to another prescription.
	ErrParentMismatch = errors.New("parent comment belongs to another prescription")
	// ErrThreadTooDeep is returned when a reply would exceed models.MaxThreadDepth.
	ErrThreadTooDeep = errors.New("comment thread too deep")
)
