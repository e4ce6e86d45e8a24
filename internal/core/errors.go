package core

import "errors"

// ErrRegistryStopped is returned by queries made after the registry loop exited.
var ErrRegistryStopped = errors.New("registry stopped")
