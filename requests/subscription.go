package requests

import "github.com/buildbuildio/fusion/gqlerrors"

// Message types of the graphql-ws protocol.
const (
	SubConnectionInit      = "connection_init"
	SubConnectionAck       = "connection_ack"
	SubConnectionKeepAlive = "ka"
	SubConnectionError     = "connection_error"
	SubConnectionTerminate = "connection_terminate"
	SubStart               = "start"
	SubData                = "data"
	SubError               = "error"
	SubComplete            = "complete"
	SubStop                = "stop"
)

// ClientSubMsg is a message sent by the subscriber.
type ClientSubMsg struct {
	ID      string   `json:"id,omitempty"`
	Type    string   `json:"type"`
	Payload *Request `json:"payload,omitempty"`
}

// ServerSubMsg carries one event of a subscription.
type ServerSubMsg struct {
	ID      string    `json:"id,omitempty"`
	Type    string    `json:"type"`
	Payload *Response `json:"payload,omitempty"`
}

// ServerSubErrorMsg is sent when a subscription could not be started.
type ServerSubErrorMsg struct {
	ID      string              `json:"id,omitempty"`
	Type    string              `json:"type"`
	Payload gqlerrors.ErrorList `json:"payload,omitempty"`
}

// NewSubErrorMsg formats err into an error message for subscription id.
func NewSubErrorMsg(id string, err error) *ServerSubErrorMsg {
	return &ServerSubErrorMsg{ID: id, Type: SubError, Payload: gqlerrors.FormatError(err)}
}
