package envelope

// Header name constants mirroring the wire contract of the upstream
// orchestrator and the EPortal backend. These were free-floating string
// constants (GeneralConstants.MESSAGE_SCHEMA_HEADER etc.) in the source
// this gateway replaces; they are collected here as the single place that
// names the header contract.
const (
	HeaderMessageSchema = "messageSchema"
	HeaderChannelID     = "channelId"
)

// DLQ diagnostic header names attached by the DLQ funnel.
const (
	HeaderDLQSourceTopic     = "sourceTopic"
	HeaderDLQErrorKind       = "errorKind"
	HeaderDLQErrorMessage    = "errorMessage"
	HeaderDLQExceptionClass  = "exceptionClass"
)
