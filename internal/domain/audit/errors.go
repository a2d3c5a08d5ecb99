package audit

import "errors"

var (
	ErrInvalidParams = errors.New("invalid audit parameters")
	ErrNoData        = errors.New("no valid records in any source")
	ErrRunNotFound   = errors.New("audit run not found")
)
