package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("permanent errors", func(t *testing.T) {
		t.Parallel()

		for _, err := range []error{
			ErrArtifactMissing,
			ErrArtifactTooLarge,
			ErrAuthExpired,
		} {
			assert.Equal(t, ClassPermanent, Classify(err), "%v", err)
			assert.True(t, IsPermanent(err), "%v", err)
			assert.False(t, IsTransient(err), "%v", err)
		}
	})

	t.Run("transient errors", func(t *testing.T) {
		t.Parallel()

		for _, err := range []error{
			ErrNetworkUnavailable,
			ErrRemoteServer,
			ErrRecordConflict,
		} {
			assert.Equal(t, ClassTransient, Classify(err), "%v", err)
			assert.True(t, IsTransient(err), "%v", err)
		}
	})

	t.Run("wrapped errors keep their class", func(t *testing.T) {
		t.Parallel()

		wrapped := fmt.Errorf("step failed: %w", ErrAuthExpired)
		assert.Equal(t, ClassPermanent, Classify(wrapped))

		wrapped = fmt.Errorf("step failed: %w", ErrNetworkUnavailable)
		assert.Equal(t, ClassTransient, Classify(wrapped))
	})

	t.Run("unrecognized errors default to transient", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, ClassTransient, Classify(errors.New("something odd")))
		assert.Equal(t, ClassTransient, Classify(context.DeadlineExceeded))
	})
}
