package update

import "errors"

var ErrInvalidInfo = errors.New("invalid update info")
