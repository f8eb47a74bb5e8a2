package strata

import "go.uber.org/zap"

// Middleware provides hooks for intercepting repository lookups.
// Middleware can be used for logging, metrics, testing, etc.
// Nested lookups made while building dependencies pass through it as well.
type Middleware interface {
	// BeforeResolve is called before looking up a key.
	// Return error to abort resolution.
	BeforeResolve(key string) error

	// AfterResolve is called after looking up a key.
	// Called even if resolution failed (instance and err may both be set).
	AfterResolve(key string, instance any, err error) error
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	middleware []Middleware
}

// newMiddlewareChain creates a new middleware chain.
func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{
		middleware: make([]Middleware, 0),
	}
}

// add appends middleware to the chain.
func (m *middlewareChain) add(middleware Middleware) {
	m.middleware = append(m.middleware, middleware)
}

// beforeResolve calls BeforeResolve on all middleware.
func (m *middlewareChain) beforeResolve(key string) error {
	for _, mw := range m.middleware {
		if err := mw.BeforeResolve(key); err != nil {
			return err
		}
	}
	return nil
}

// afterResolve calls AfterResolve on all middleware.
func (m *middlewareChain) afterResolve(key string, instance any, err error) error {
	for _, mw := range m.middleware {
		if mwErr := mw.AfterResolve(key, instance, err); mwErr != nil {
			return mwErr
		}
	}
	return nil
}

// FuncMiddleware wraps functions as Middleware.
type FuncMiddleware struct {
	BeforeResolveFunc func(key string) error
	AfterResolveFunc  func(key string, instance any, err error) error
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(key string) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(key)
	}
	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(key string, instance any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(key, instance, err)
	}
	return nil
}

// LogMiddleware logs every lookup at debug level and failed ones at warn.
func LogMiddleware(logger *zap.Logger) Middleware {
	return &FuncMiddleware{
		AfterResolveFunc: func(key string, instance any, err error) error {
			if err != nil {
				logger.Warn("lookup failed", zap.String("key", key), zap.Error(err))
				return nil
			}
			logger.Debug("resolved", zap.String("key", key), zap.String("type", typeNameOf(instance)))
			return nil
		},
	}
}
