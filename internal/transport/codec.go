package transport

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pefman/seabattle/internal/models"
)

var ErrUnknownCodec = errors.New("unknown codec")

// Codec frames envelopes for one connection. JSON travels as text frames,
// msgpack as binary frames.
type Codec interface {
	Name() string
	FrameType() int
	Encode(msg models.WsMsg) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

// Inbound is a decoded envelope whose payload is bound lazily, once the
// handler knows which type to expect.
type Inbound struct {
	Type string
	data []byte
	bind func(data []byte, v any) error
}

// Bind decodes the payload into v. A missing payload leaves v untouched.
func (in Inbound) Bind(v any) error {
	if len(in.data) == 0 || in.bind == nil {
		return nil
	}
	return errors.Wrapf(in.bind(in.data, v), "decode %s payload", in.Type)
}

func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	}
	return nil, errors.Wrap(ErrUnknownCodec, name)
}

type JSON struct{}

func (JSON) Name() string   { return "json" }
func (JSON) FrameType() int { return websocket.TextMessage }

func (JSON) Encode(msg models.WsMsg) ([]byte, error) {
	b, err := json.Marshal(msg)
	return b, errors.Wrap(err, "encode json frame")
}

func (JSON) Decode(frame []byte) (Inbound, error) {
	var in struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &in); err != nil {
		return Inbound{}, errors.Wrap(err, "decode json frame")
	}
	if string(in.Data) == "null" {
		in.Data = nil
	}
	return Inbound{Type: in.Type, data: in.Data, bind: json.Unmarshal}, nil
}

type Msgpack struct{}

func (Msgpack) Name() string   { return "msgpack" }
func (Msgpack) FrameType() int { return websocket.BinaryMessage }

func (Msgpack) Encode(msg models.WsMsg) ([]byte, error) {
	b, err := msgpack.Marshal(msg)
	return b, errors.Wrap(err, "encode msgpack frame")
}

func (Msgpack) Decode(frame []byte) (Inbound, error) {
	var in struct {
		Type string             `msgpack:"type"`
		Data msgpack.RawMessage `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(frame, &in); err != nil {
		return Inbound{}, errors.Wrap(err, "decode msgpack frame")
	}
	// 0xc0 is msgpack nil
	if len(in.Data) == 1 && in.Data[0] == 0xc0 {
		in.Data = nil
	}
	return Inbound{Type: in.Type, data: in.Data, bind: msgpack.Unmarshal}, nil
}
