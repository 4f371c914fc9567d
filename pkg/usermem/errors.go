package usermem

import "errors"

// ErrNoField is returned when the variant has no such field.
var ErrNoField = errors.New("field not present in this variant")
