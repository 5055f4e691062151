package graph

import "context"

type resumeValueKey struct{}

type resumeValue struct {
	value any
}

// WithResumeValue adds a resume value to the context.
// This value will be returned by Interrupt() when re-executing a node.
// A nil value is a valid resume value.
func WithResumeValue(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeValueKey{}, resumeValue{value: value})
}

// GetResumeValue retrieves the resume value from the context.
func GetResumeValue(ctx context.Context) any {
	v, _ := LookupResumeValue(ctx)
	return v
}

// LookupResumeValue reports the resume value and whether one was set.
func LookupResumeValue(ctx context.Context) (any, bool) {
	rv, ok := ctx.Value(resumeValueKey{}).(resumeValue)
	if !ok {
		return nil, false
	}
	return rv.value, true
}

// Interrupt pauses execution and waits for input.
// If resuming, it returns the value provided in the resume command.
func Interrupt(ctx context.Context, value any) (any, error) {
	if resumeVal, ok := LookupResumeValue(ctx); ok {
		return resumeVal, nil
	}
	return nil, &NodeInterrupt{Value: value}
}
