package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", Clone(ErrNotApproved, "report card rc-1 is not approved"))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrNotApproved.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.True(t, IsCode(wrapped, ErrNotApproved.Code))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.False(t, IsCode(errors.New("boom"), ErrNotFound.Code))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrNoParent, "student s-1 has no parent")
	assert.Equal(t, "student s-1 has no parent", clone.Message)
	assert.Equal(t, "student has no assigned parent", ErrNoParent.Message)
}
