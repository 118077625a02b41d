package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateUnavailableStatus(t *testing.T) {
	cause := errors.New("404 from origin")

	callerErr := ToDomainError(NewTemplateUnavailable("https://x/t.png", true, cause))
	assert.Equal(t, http.StatusBadRequest, callerErr.HTTPStatus)
	assert.ErrorIs(t, callerErr, cause)

	upstreamErr := ToDomainError(NewTemplateUnavailable("https://x/t.png", false, cause))
	assert.Equal(t, http.StatusBadGateway, upstreamErr.HTTPStatus)
	assert.Equal(t, CodeTemplateUnavailable, upstreamErr.Code)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("issue: %w", NewDuplicateTicket("AB12CD34"))
	assert.True(t, HasCode(err, CodeDuplicateTicket))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	converted := ToDomainError(errors.New("boom"))
	require.NotNil(t, converted)
	assert.Equal(t, CodeInternal, converted.Code)
	assert.Equal(t, http.StatusInternalServerError, converted.HTTPStatus)
	assert.Equal(t, "internal server error: boom", converted.Error())
}

func TestMissingFieldDetails(t *testing.T) {
	err := ToDomainError(NewMissingField("email"))
	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "missing required field: email", err.Error())
}
