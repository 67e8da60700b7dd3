package errors

import "errors"

var (
	ErrParseCmd       = errors.New("cannot parse arguments")
	ErrHelp           = errors.New("")
	ErrModeFlag       = errors.New("mode flag is required")
	ErrUnknownService = errors.New("unknown service, write --help command to see valid services")

	ErrDBConn = errors.New("db connection failure")

	ErrMBConn    = errors.New("message broker connection failure")
	ErrMBCh      = errors.New("message broker channel failure")
	ErrPublish   = errors.New("message was not published")
	ErrNoConfirm = errors.New("broker did not confirm message")

	ErrTokenInvalid = errors.New("invalid token")
)
