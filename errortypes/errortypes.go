package errortypes

// Timeout should be used to flag that a partner failed to return a response because the
// partner timeout budget expired before a result was received.
//
// Timeouts will not be written to the app log, since it's not an actionable item for the hosts.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// TransportFailure should be used when the network call to a partner endpoint could not be
// completed (e.g. "couldn't find host", connection refused, non-2xx status).
type TransportFailure struct {
	Message string
}

func (err *TransportFailure) Error() string {
	return err.Message
}

func (err *TransportFailure) Code() int {
	return TransportFailureErrorCode
}

func (err *TransportFailure) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the external request).
//
// BadInputs will not be written to the app log, since it's not an actionable item for the hosts.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The partner gave a malformed or unexpected response.
//   - The partner parser panicked while reading the response.
//
// These should not be used to log _connection_ errors, use TransportFailure for those.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// FailedToRequestBids is an error to cover the case where a partner failed to generate any requests for
// demand. A retrieval cycle that hits this does not make a network call for that partner.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

func (err *FailedToRequestBids) Severity() Severity {
	return SeverityFatal
}

// PartnerDisabled is used when a slot maps to a partner which is configured but switched off.
type PartnerDisabled struct {
	Message string
}

func (err *PartnerDisabled) Error() string {
	return err.Message
}

func (err *PartnerDisabled) Code() int {
	return PartnerDisabledErrorCode
}

func (err *PartnerDisabled) Severity() Severity {
	return SeverityWarning
}

// Warning is a generic non-fatal error. Throughout the codebase, an error can
// only be a warning if it's of the type defined below
type Warning struct {
	WarningCode int
	Message     string
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}
