package httpserver

import "errors"

var ErrServerFailure = errors.New("httpserver: server failure")
