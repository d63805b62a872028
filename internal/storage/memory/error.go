package memory

import "errors"

var ErrInjectedFailure = errors.New("injected write failure")
