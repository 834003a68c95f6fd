// Package sentinel holds infrastructure errors that stores return and
// services translate into domain errors.
package sentinel

import "errors"

// ErrNotFound means the store holds no registry snapshot yet.
var ErrNotFound = errors.New("not found")
