package strata

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeCannotResolve indicates a key, type or parameter has no resolution path
	CodeCannotResolve = "CANNOT_RESOLVE"

	// CodePartiallyResolved indicates a resolver did work but produced no arguments
	CodePartiallyResolved = "PARTIALLY_RESOLVED"

	// CodeCircularDependency indicates a type was requested while under construction
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeInvalidConfiguration indicates invalid registration or factory arguments
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"

	// CodeTypeMismatch indicates a value or key is not of the expected type
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeBaseLayer indicates an attempt to remove the permanent base layer
	CodeBaseLayer = "BASE_LAYER"

	// CodeFactoryError indicates a factory returned an error
	CodeFactoryError = "FACTORY_ERROR"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrCannotResolveSentinel is a sentinel error for unresolvable lookups (for error checking).
var ErrCannotResolveSentinel = errs.NewError(CodeCannotResolve, "cannot resolve", nil)

// ErrPartiallyResolved is returned by resolvers that only warmed up dependencies.
// The resolver chain treats it like a decline and never surfaces it.
var ErrPartiallyResolved = errs.NewError(CodePartiallyResolved, "partially resolved", nil)

// ErrCircularDependencySentinel is a sentinel error for circular dependency (for error checking).
var ErrCircularDependencySentinel = errs.NewError(CodeCircularDependency, "circular dependency", nil)

// ErrInvalidConfigurationSentinel is a sentinel error for configuration errors (for error checking).
var ErrInvalidConfigurationSentinel = errs.NewError(CodeInvalidConfiguration, "invalid configuration", nil)

// ErrTypeMismatchSentinel is a sentinel error for type mismatch (for error checking).
var ErrTypeMismatchSentinel = errs.NewError(CodeTypeMismatch, "type mismatch", nil)

// ErrBaseLayer is returned when popping the permanent base layer.
var ErrBaseLayer = errs.NewError(CodeBaseLayer, "cannot pop the base repository layer", nil)

// ErrFactorySentinel is a sentinel error for failing factories (for error checking).
var ErrFactorySentinel = errs.NewError(CodeFactoryError, "factory error", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrCannotResolve creates an error for a subject (key, type or parameter)
// without a resolution path. The cause carries the context of deeper levels.
func ErrCannotResolve(subject string, cause error) *errs.Error {
	msg := fmt.Sprintf("cannot resolve %s", subject)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return errs.NewError(
		CodeCannotResolve,
		msg,
		cause,
	).WithContext("subject", subject).(*errs.Error)
}

// ErrCircularDependency creates an error carrying the lookup chain in request order.
func ErrCircularDependency(chain string) *errs.Error {
	return errs.NewError(
		CodeCircularDependency,
		chain,
		nil,
	).WithContext("chain", chain).(*errs.Error)
}

// ErrInvalidConfiguration creates an error for invalid registration arguments.
func ErrInvalidConfiguration(reason string) *errs.Error {
	return errs.NewError(
		CodeInvalidConfiguration,
		reason,
		nil,
	).WithContext("reason", reason).(*errs.Error)
}

// ErrTypeMismatch creates an error for a value that is not of the expected type.
func ErrTypeMismatch(expected string, actual any) *errs.Error {
	return errs.NewError(
		CodeTypeMismatch,
		fmt.Sprintf("expected %s, got %T", expected, actual),
		nil,
	).WithContext("expected", expected).
		WithContext("actual_type", fmt.Sprintf("%T", actual)).(*errs.Error)
}

// NewFactoryError creates an error for a factory that failed to build a type.
func NewFactoryError(name string, cause error) *errs.Error {
	return errs.NewError(
		CodeFactoryError,
		fmt.Sprintf("factory %s failed: %v", name, cause),
		cause,
	).WithContext("factory", name).(*errs.Error)
}

// IsCannotResolve reports whether err is a CannotResolve error.
func IsCannotResolve(err error) bool {
	return errors.Is(err, ErrCannotResolveSentinel)
}

// IsCircularDependency reports whether err is a CircularDependency error.
func IsCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependencySentinel)
}

// declined reports whether a resolver error lets the chain try the next resolver.
func declined(err error) bool {
	return IsCannotResolve(err) || errors.Is(err, ErrPartiallyResolved)
}

// typeName returns the short name of t used for aliases and lookup chains.
// Pointer types are named after their element.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t == anyType {
		return "any"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
