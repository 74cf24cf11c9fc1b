package imap4

import "github.com/rotisserie/eris"

// ParseError reports a parse failure at a specific byte offset into the
// input the parser was given. All parse failures are fatal to the
// current call: the parser never backtracks past a single-byte peek and
// never returns a partial result.
type ParseError struct {
	Offset int
	Msg    string
	cause  error
}

func (e *ParseError) Error() string {
	return e.Msg
}

func (e *ParseError) Unwrap() error { return e.cause }

func newParseError(off int, format string, args ...any) *ParseError {
	cause := eris.Errorf(format, args...)
	return &ParseError{
		Offset: off,
		Msg:    eris.Wrapf(cause, "imap4: parse error at offset %d", off).Error(),
		cause:  cause,
	}
}
