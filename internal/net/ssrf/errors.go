// Package ssrf validates hostnames and IP addresses before outbound
// fetches so a model-supplied URL cannot be pointed at loopback, RFC1918
// space, or the link-local metadata range. The web fetch tool runs every
// target through ValidatePublicHostname.
package ssrf

// SSRFBlockedError is returned when a hostname or IP address is blocked
// due to SSRF protection rules.
type SSRFBlockedError struct {
	Message string
}

// Error implements the error interface.
func (e *SSRFBlockedError) Error() string {
	return e.Message
}

// NewSSRFBlockedError creates a new SSRFBlockedError with the given message.
func NewSSRFBlockedError(message string) *SSRFBlockedError {
	return &SSRFBlockedError{Message: message}
}
