package agoraerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifiesTypedErrors(t *testing.T) {
	err := New(KindConflict, "idempotency key reused")
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(err, KindNotFound))
}

func TestKindOfDefaultsUnclassifiedToTransient(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("boom")))
}

func TestKindOfNilIsUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapPreservesCauseAndNilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(KindFatal, nil, "should stay nil"))

	cause := fmt.Errorf("dial tcp: connection refused")
	wrapped := Wrap(KindTransient, cause, "polling runtime events")
	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestNewfFormats(t *testing.T) {
	err := Newf(KindInvalidInput, "field %q exceeds max length %d", "title", 280)
	assert.Contains(t, err.Error(), `field "title" exceeds max length 280`)
}
