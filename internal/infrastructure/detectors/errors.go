package detectors

import "errors"

var ErrUnknownDetector = errors.New("unknown detector")
