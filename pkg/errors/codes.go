package errors

// ErrorCode is a string representation of a specific error condition.  Codes
// carry a module prefix ("DOCK_", "STRUCT_", ...) so that log pipelines can
// group them without a lookup table.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeOK       ErrorCode = "OK"
	ErrCodeUnknown  ErrorCode = "UNKNOWN"
	ErrCodeInternal ErrorCode = "COMMON_001"

	ErrCodeBadRequest ErrorCode = "COMMON_002"
	ErrCodeNotFound   ErrorCode = "COMMON_005"
	ErrCodeTimeout    ErrorCode = "COMMON_009"
	ErrCodeValidation ErrorCode = "COMMON_010"

	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeExternalService ErrorCode = "COMMON_014"
)

// Docking pipeline error codes.
const (
	ErrCodeToolFailure        ErrorCode = "DOCK_001"
	ErrCodeMalformedLog       ErrorCode = "DOCK_002"
	ErrCodePoseCountMismatch  ErrorCode = "DOCK_003"
	ErrCodeEmptyStructure     ErrorCode = "DOCK_004"
	ErrCodeStageFailed        ErrorCode = "DOCK_005"
	ErrCodeInvalidTransition  ErrorCode = "DOCK_006"
	ErrCodeInvalidBox         ErrorCode = "DOCK_007"
	ErrCodeToolUnavailable    ErrorCode = "DOCK_008"
	ErrCodeArchiveFailed      ErrorCode = "DOCK_009"
	ErrCodeStagingFailed      ErrorCode = "DOCK_010"
	ErrCodeNoPoses            ErrorCode = "DOCK_011"
	ErrCodeArtifactExportFail ErrorCode = "DOCK_012"
)

// Structure parsing error codes.
const (
	ErrCodeStructureUnsupported ErrorCode = "STRUCT_001"
	ErrCodeStructureParse       ErrorCode = "STRUCT_002"
	ErrCodeStructureRead        ErrorCode = "STRUCT_003"
)

// Configuration error codes.
const (
	ErrCodeConfigRead    ErrorCode = "CFG_001"
	ErrCodeConfigInvalid ErrorCode = "CFG_002"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "not found",
	ErrCodeTimeout:         "timeout",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeExternalService: "external service error",

	ErrCodeToolFailure:        "external tool failed",
	ErrCodeMalformedLog:       "malformed docking log",
	ErrCodePoseCountMismatch:  "pose count does not match score count",
	ErrCodeEmptyStructure:     "structure has no atoms",
	ErrCodeStageFailed:        "pipeline stage failed",
	ErrCodeInvalidTransition:  "invalid stage transition",
	ErrCodeInvalidBox:         "invalid search box",
	ErrCodeToolUnavailable:    "external tool unavailable",
	ErrCodeArchiveFailed:      "failed to build archive",
	ErrCodeStagingFailed:      "failed to stage run files",
	ErrCodeNoPoses:            "pose splitter produced no files",
	ErrCodeArtifactExportFail: "artifact export failed",

	ErrCodeStructureUnsupported: "unsupported structure format",
	ErrCodeStructureParse:       "failed to parse structure",
	ErrCodeStructureRead:        "failed to read structure",

	ErrCodeConfigRead:    "failed to read configuration",
	ErrCodeConfigInvalid: "invalid configuration",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}
