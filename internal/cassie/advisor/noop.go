package advisor

import "context"

// noopProvider is the Provider used when no API key is configured. Every
// method fails with ErrDisabled so the Advisor wrapper picks its canned
// fallbacks without special-casing a nil provider.
type noopProvider struct{}

// Disabled returns a Provider whose every call fails with ErrDisabled.
func Disabled() Provider {
	return noopProvider{}
}

var _ Provider = noopProvider{}

func (noopProvider) Classify(context.Context, string) (*Classification, error) {
	return nil, ErrDisabled
}

func (noopProvider) Rewrite(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

func (noopProvider) Welcome(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

func (noopProvider) GenerateManual(context.Context, string, map[string]any) (string, error) {
	return "", ErrDisabled
}

func (noopProvider) RouteManual(context.Context, string) (*Route, error) {
	return nil, ErrDisabled
}
