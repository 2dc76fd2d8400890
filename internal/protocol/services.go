package protocol

// KWP2000 diagnostic service identifiers
const (
	SidStartDiagnosticSession     = 0x10
	SidECUReset                   = 0x11
	SidClearDiagnosticInformation = 0x14
	SidReadDTCByStatus            = 0x18
	SidReadECUIdentification      = 0x1A
	SidReadDataByLocalIdentifier  = 0x21
	SidReadDataByCommonIdentifier = 0x22
	SidReadMemoryByAddress        = 0x23
	SidSecurityAccess             = 0x27
	SidWriteDataByLocalIdentifier = 0x3B
	SidTesterPresent              = 0x3E
	SidStartRoutineByLocalID      = 0x31
	SidRequestDownload            = 0x34
	SidTransferData               = 0x36
	SidRequestTransferExit        = 0x37
	SidStartCommunication         = 0x81
	SidStopCommunication          = 0x82
	SidAccessTimingParameters     = 0x83
	SidNegativeResponse           = 0x7F
	PositiveResponseOffset        = 0x40
)

var serviceNames = map[byte]string{
	SidStartDiagnosticSession:     "StartDiagnosticSession",
	SidECUReset:                   "ECUReset",
	SidClearDiagnosticInformation: "ClearDiagnosticInformation",
	SidReadDTCByStatus:            "ReadDTCByStatus",
	SidReadECUIdentification:      "ReadECUIdentification",
	SidReadDataByLocalIdentifier:  "ReadDataByLocalIdentifier",
	SidReadDataByCommonIdentifier: "ReadDataByCommonIdentifier",
	SidReadMemoryByAddress:        "ReadMemoryByAddress",
	SidSecurityAccess:             "SecurityAccess",
	SidWriteDataByLocalIdentifier: "WriteDataByLocalIdentifier",
	SidTesterPresent:              "TesterPresent",
	SidStartRoutineByLocalID:      "StartRoutineByLocalIdentifier",
	SidRequestDownload:            "RequestDownload",
	SidTransferData:               "TransferData",
	SidRequestTransferExit:        "RequestTransferExit",
	SidStartCommunication:         "StartCommunication",
	SidStopCommunication:          "StopCommunication",
	SidAccessTimingParameters:     "AccessTimingParameters",
}

// ServiceName returns a human-readable name for a service byte.
// Positive responses are reported as "<Service>Response".
func ServiceName(sid byte) string {
	if sid == SidNegativeResponse {
		return "NegativeResponse"
	}
	if name, ok := serviceNames[sid]; ok {
		return name
	}
	if sid >= PositiveResponseOffset {
		if name, ok := serviceNames[sid-PositiveResponseOffset]; ok {
			return name + "Response"
		}
	}
	return "unknown service"
}

// Negative response codes
const (
	NrcGeneralReject           = 0x10
	NrcServiceNotSupported     = 0x11
	NrcSubFunctionNotSupported = 0x12
	NrcBusyRepeatRequest       = 0x21
	NrcConditionsNotCorrect    = 0x22
	NrcRequestOutOfRange       = 0x31
	NrcSecurityAccessDenied    = 0x33
	NrcInvalidKey              = 0x35
	NrcResponsePending         = 0x78
)

// NegativeResponseMessage returns human-readable text for a negative response code
func NegativeResponseMessage(code byte) string {
	switch code {
	case NrcGeneralReject:
		return "general reject"
	case NrcServiceNotSupported:
		return "service not supported"
	case NrcSubFunctionNotSupported:
		return "sub-function not supported"
	case NrcBusyRepeatRequest:
		return "busy, repeat request"
	case NrcConditionsNotCorrect:
		return "conditions not correct"
	case NrcRequestOutOfRange:
		return "request out of range"
	case NrcSecurityAccessDenied:
		return "security access denied"
	case NrcInvalidKey:
		return "invalid key"
	case NrcResponsePending:
		return "response pending"
	default:
		return "unknown error"
	}
}
