package error

// GenericError is implemented by every error that knows how it should be
// surfaced over HTTP.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
