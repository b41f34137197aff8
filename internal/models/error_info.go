package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures reported by the gateway
type ErrorKind string

const (
	// NetworkError indicates the request produced no response
	NetworkError ErrorKind = "network"

	// HTTPError indicates a non-2xx response
	HTTPError ErrorKind = "http"

	// ParseError indicates a 2xx response whose body was not valid JSON
	ParseError ErrorKind = "parse"

	// CanceledError indicates the caller abandoned the request
	CanceledError ErrorKind = "canceled"
)

// ErrorInfo is the uniform error shape stored on cache entries and mutation state
type ErrorInfo struct {
	Kind       ErrorKind      `json:"kind"`
	Message    string         `json:"message"`
	Info       map[string]any `json:"info,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Err        error          `json:"-"`
}

// Error implements the error interface
func (e *ErrorInfo) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

// InfoMessage returns info.message from the backend payload, or "" when absent
func (e *ErrorInfo) InfoMessage() string {
	if e == nil || e.Info == nil {
		return ""
	}
	msg, _ := e.Info["message"].(string)
	return msg
}

// AsErrorInfo extracts an *ErrorInfo from err. Errors of any other type are
// wrapped as a network-kind ErrorInfo so callers always get the uniform shape.
func AsErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return &ErrorInfo{Kind: NetworkError, Message: err.Error(), Err: err}
}

// IsCanceled reports whether err is a canceled-kind ErrorInfo
func IsCanceled(err error) bool {
	var info *ErrorInfo
	return errors.As(err, &info) && info.Kind == CanceledError
}
