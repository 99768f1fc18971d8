package gateway

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/lhdbsbz/hookrelay/internal/relay"
)

// Frame is the WebSocket message format in both directions.
// Seq is set on server frames only and increases per connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
}

func EventFrame(event string, seq int64, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Seq: seq, Data: data}, nil
}

// ReadInbound reads the next WebSocket message. A transport error is returned as err;
// a message that is not a valid frame comes back as an Inbound carrying the parse error.
func ReadInbound(ws *websocket.Conn) (relay.Inbound, error) {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return relay.Inbound{}, err
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return relay.Inbound{Err: err}, nil
	}
	if len(frame.Data) == 0 {
		frame.Data = json.RawMessage(`{}`)
	}
	return relay.Inbound{Event: frame.Event, Data: frame.Data}, nil
}
