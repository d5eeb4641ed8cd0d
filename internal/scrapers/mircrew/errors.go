package mircrew

import "errors"

var (
	// ErrConfiguration means the client is missing credentials, retrying will
	// not help.
	ErrConfiguration = errors.New("mircrew: missing configuration")
	// ErrAuthentication means the forum did not accept the login.
	ErrAuthentication = errors.New("mircrew: authentication failed")
	// ErrTransport covers non-2xx responses, timeouts and navigation failures.
	ErrTransport     = errors.New("mircrew: transport failure")
	ErrInvalidPostId = errors.New("mircrew: invalid post id")
)
