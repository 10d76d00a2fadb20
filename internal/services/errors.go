package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport           = errors.New("transport error")
	ErrDecode              = errors.New("decode error")
	ErrDaemon              = errors.New("daemon error")
	ErrIncompleteAgreement = errors.New("incomplete agreement")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTimeout             = errors.New("timeout")
)

// Category names the failure class of an error for event severity decisions.
type Category string

const (
	CategoryNone       Category = ""
	CategoryCancelled  Category = "cancelled"
	CategoryTransport  Category = "transport"
	CategoryDecode     Category = "decode"
	CategoryDaemon     Category = "daemon"
	CategoryIncomplete Category = "incomplete"
	CategoryConfig     Category = "configuration"
	CategoryUnknown    Category = "unknown"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrDaemon
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error onto its failure category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, ErrDecode):
		return CategoryDecode
	case errors.Is(err, ErrIncompleteAgreement):
		return CategoryIncomplete
	case errors.Is(err, ErrTransport), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTimeout):
		return CategoryTransport
	case errors.Is(err, ErrDaemon):
		return CategoryDaemon
	case errors.Is(err, ErrConfiguration):
		return CategoryConfig
	default:
		return CategoryUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
