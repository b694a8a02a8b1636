package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("sentinel")

func TestKindOfThroughWrapping(t *testing.T) {
	base := APIf(404, "https://example.test/models/1", "model not found").Wrap(errSentinel)
	wrapped := fmt.Errorf("resolving %q: %w", "1", base)

	assert.Equal(t, KindAPI, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindAPI))
	assert.False(t, Is(wrapped, KindInput))
	assert.ErrorIs(t, wrapped, errSentinel)
	assert.True(t, Retryable(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(nil))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"input", Inputf("Bad source provided: %s", "x"), "input error: Bad source provided: x"},
		{"api with status", APIf(500, "http://u", "boom"), "api error (status 500): boom [http://u]"},
		{"api transport", APIf(0, "", "dial failed"), "api error: dial failed"},
		{"hint", Resourcesf("missing").WithHint("try again"), "resources error: missing\ntry again"},
		{"cause", Unexpectedf(errSentinel, "decode"), "unexpected error: decode: sentinel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWithHintDoesNotMutate(t *testing.T) {
	e := Inputf("x")
	_ = e.WithHint("h")
	assert.Empty(t, e.Hint)
}
