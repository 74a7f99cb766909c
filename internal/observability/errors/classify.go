// Package errors normalises errors into low-cardinality labels for logs and metrics.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"
)

// Transport failure kinds returned by Kind.
const (
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
	KindNetwork  = "network"
)

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// It unwraps errors until the innermost concrete type is found and converts it to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// Kind reports whether err is a timeout, a cancellation or another network
// failure. It returns "" for anything else.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if goerrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var opErr *net.OpError
	if goerrors.As(err, &opErr) {
		return KindNetwork
	}
	return ""
}
