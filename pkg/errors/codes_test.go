package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "pose count does not match score count", DefaultMessageForCode(ErrCodePoseCountMismatch))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("NOPE_999")))
}

func TestEveryDockingCodeHasMessage(t *testing.T) {
	for _, code := range []ErrorCode{
		ErrCodeToolFailure, ErrCodeMalformedLog, ErrCodePoseCountMismatch,
		ErrCodeEmptyStructure, ErrCodeStageFailed, ErrCodeInvalidTransition,
		ErrCodeInvalidBox, ErrCodeToolUnavailable, ErrCodeArchiveFailed,
		ErrCodeStagingFailed, ErrCodeNoPoses, ErrCodeArtifactExportFail,
	} {
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "missing message for %s", code)
	}
}
