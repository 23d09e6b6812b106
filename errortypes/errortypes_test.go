package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadCode(t *testing.T) {
	testCases := []struct {
		description string
		err         error
		expected    int
	}{
		{"timeout", &Timeout{Message: "t"}, TimeoutErrorCode},
		{"transport", &TransportFailure{Message: "f"}, TransportFailureErrorCode},
		{"parse", &BadServerResponse{Message: "p"}, BadServerResponseErrorCode},
		{"build", &FailedToRequestBids{Message: "b"}, FailedToRequestBidsErrorCode},
		{"warning", &Warning{WarningCode: SlotRateLimitedWarningCode}, SlotRateLimitedWarningCode},
		{"plain", errors.New("plain"), UnknownErrorCode},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, ReadCode(test.err), test.description)
	}
}

func TestSeverityFilters(t *testing.T) {
	warning := &Warning{Message: "skipped slot"}
	disabled := &PartnerDisabled{Message: "off"}
	fatal := &Timeout{Message: "late"}
	plain := errors.New("plain")

	errs := []error{warning, fatal, disabled, plain}

	assert.Equal(t, []error{fatal, plain}, FatalOnly(errs))
	assert.Equal(t, []error{warning, disabled}, WarningOnly(errs))
	assert.True(t, ContainsFatalError(errs))
	assert.False(t, ContainsFatalError([]error{warning}))
}

func TestNewAggregateError(t *testing.T) {
	assert.Nil(t, NewAggregateError("none", nil))

	err := NewAggregateError("partners failed", []error{errors.New("a"), errors.New("b")})
	assert.Equal(t, "partners failed (2 errors):\n  1: a\n  2: b\n", err.Error())

	single := NewAggregateError("partners failed", []error{errors.New("a")})
	assert.Equal(t, "partners failed (1 error):\n  1: a\n", single.Error())
}
