// Package apperr defines the error taxonomy shared by producers, consumers and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// ConnectionError reports an unreachable bus, cache or store.
type ConnectionError struct {
	Component string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Component, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError reports malformed input. It is raised before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an operation on a missing entity. Not retriable.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// HandlerError wraps a consumer failure. The delivering bus reacts to it by
// leaving the message unacknowledged so it is redelivered.
type HandlerError struct {
	RoutingKey string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s: %v", e.RoutingKey, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func Connection(component string, err error) error {
	return &ConnectionError{Component: component, Err: err}
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Handler(routingKey string, err error) error {
	return &HandlerError{RoutingKey: routingKey, Err: err}
}

func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsHandler(err error) bool {
	var target *HandlerError
	return errors.As(err, &target)
}
