package protocol

// MessageType is the discriminator of a wire envelope.
type MessageType string

const (
	MsgCommand           MessageType = "command"
	MsgResponse          MessageType = "response"
	MsgHeartbeat         MessageType = "heartbeat"
	MsgHeartbeatResponse MessageType = "heartbeat_response"
	MsgStreamingOutput   MessageType = "streaming_output"
	MsgCommandStarted    MessageType = "command_started"
	MsgCommandCompleted  MessageType = "command_completed"
	MsgError             MessageType = "error"
)

// OutputType names the stream a StreamingOutput chunk came from.
type OutputType string

const (
	Stdout OutputType = "stdout"
	Stderr OutputType = "stderr"
)

// Message is one frame on the wire.
type Message interface {
	Type() MessageType
	isMessage()
}

// CommandMessage carries a Command to the runner.
type CommandMessage struct {
	Command Command
}

// ResponseMessage carries a Response back to the controller.
type ResponseMessage struct {
	Response Response
}

// Heartbeat is sent by the controller; Timestamp is Unix milliseconds.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

// HeartbeatResponse acknowledges a Heartbeat and echoes nothing but time.
type HeartbeatResponse struct {
	Timestamp int64 `json:"timestamp"`
}

// StreamingOutput is a chunk of command output. The last chunk for a command
// has IsComplete set.
type StreamingOutput struct {
	CommandID  string     `json:"commandId" validate:"required"`
	OutputType OutputType `json:"outputType" validate:"required,oneof=stdout stderr"`
	Content    string     `json:"content"`
	IsComplete bool       `json:"isComplete"`
}

type CommandStarted struct {
	CommandID string `json:"commandId" validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

type CommandCompleted struct {
	CommandID string `json:"commandId" validate:"required"`
	Timestamp int64  `json:"timestamp"`
	Success   bool   `json:"success"`
}

// ErrorMessage reports a transport-level failure not tied to any command.
type ErrorMessage struct {
	Message string  `json:"error" validate:"required"`
	Details *string `json:"details,omitempty"`
}

func (CommandMessage) Type() MessageType    { return MsgCommand }
func (ResponseMessage) Type() MessageType   { return MsgResponse }
func (Heartbeat) Type() MessageType         { return MsgHeartbeat }
func (HeartbeatResponse) Type() MessageType { return MsgHeartbeatResponse }
func (StreamingOutput) Type() MessageType   { return MsgStreamingOutput }
func (CommandStarted) Type() MessageType    { return MsgCommandStarted }
func (CommandCompleted) Type() MessageType  { return MsgCommandCompleted }
func (ErrorMessage) Type() MessageType      { return MsgError }

func (CommandMessage) isMessage()    {}
func (ResponseMessage) isMessage()   {}
func (Heartbeat) isMessage()         {}
func (HeartbeatResponse) isMessage() {}
func (StreamingOutput) isMessage()   {}
func (CommandStarted) isMessage()    {}
func (CommandCompleted) isMessage()  {}
func (ErrorMessage) isMessage()      {}
