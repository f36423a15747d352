package testutils

import "errors"

var errPayRejected = errors.New("payment rejected")
