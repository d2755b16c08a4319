package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps transport errors with the controller address
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with controller at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The device may not speak EtherNet/IP, or the network path is blocked",
		Try:     fmt.Sprintf("enipctl discover, then enipctl read --address %s:%d <tag>", host, port),
		Err:     err,
	}
}

// WrapCIPError wraps CIP protocol errors with the failed operation
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("CIP operation failed: %s", operation),
		Reason:  extractCIPReason(err),
		Hint:    "Check the tag name, program scope and controller slot",
		Try:     "enipctl tags --address <ip> to list the tags the controller exposes",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with the config path
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Every field has a default; remove fields you do not need to override",
		Try:     fmt.Sprintf("Regenerate a config: enipctl init --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	if IsTimeout(err) {
		return "Connection timeout - device may be offline or unreachable"
	}
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - device may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - device may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or device unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - device closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func extractCIPReason(err error) string {
	switch CategoryOf(err) {
	case CategoryCIPStatus:
		return "Device returned a CIP error status code"
	case CategoryTimeout:
		return "Device did not respond within timeout period"
	}
	errStr := err.Error()

	if strings.Contains(errStr, "status 0x") {
		return "Device returned a CIP error status code"
	}
	if strings.Contains(errStr, "invalid packet") || strings.Contains(errStr, "decode") {
		return "Received invalid or malformed response from device"
	}
	if strings.Contains(errStr, "timeout") {
		return "Device did not respond within timeout period"
	}

	return "CIP protocol error occurred"
}
