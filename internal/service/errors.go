package service

import "errors"

// ErrValidation marks a request rejected before touching storage.
var ErrValidation = errors.New("validation failed")
