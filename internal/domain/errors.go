package domain

import "errors"

var (
	// ErrUnsupportedURL means no registered provider claims the input URL.
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrInvalidProviderURL means a provider claimed the domain but the URL
	// carries no parseable resource identifier.
	ErrInvalidProviderURL = errors.New("unparseable resource identifier")
	// ErrUnknownSource means the requested source name is not registered.
	ErrUnknownSource = errors.New("unknown source")
	// ErrAntiBot means an upstream site answered with a captcha or block page
	// instead of content.
	ErrAntiBot = errors.New("upstream anti-bot challenge")
)
