package protocol

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

// CommandEnvelope wraps a command-channel request with the address its reply
// must be sent to.
type CommandEnvelope struct {
	ReplyTo string          `json:"reply_to"`
	Message json.RawMessage `json:"message"`
}

func DecodeMessage(data []byte) (model.Message, error) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Message{}, apperrors.InvalidMessage("malformed message").WithCause(err)
	}
	return msg, nil
}

func EncodeMessage(msg model.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (CommandEnvelope, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return CommandEnvelope{}, apperrors.InvalidMessage("malformed command envelope").WithCause(err)
	}
	if env.ReplyTo == "" {
		return CommandEnvelope{}, apperrors.InvalidMessage("command envelope has no reply address")
	}
	return env, nil
}

func EncodeEnvelope(replyTo string, msg model.Message) ([]byte, error) {
	raw, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(CommandEnvelope{ReplyTo: replyTo, Message: raw})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func EncodeReply(reply model.Reply) ([]byte, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return data, nil
}

func DecodeReply(data []byte) (model.Reply, error) {
	var reply model.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return model.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// NewReply builds the answer to msg. An empty info falls back to "Success" or
// to the error message.
func NewReply(msg model.Message, err error, info string) model.Reply {
	reply := model.Reply{
		OriginalType: msg.Type,
		OriginalID:   msg.ID,
		Code:         apperrors.WireCode(err),
		Info:         info,
	}
	if err == nil && info == "" {
		reply.Info = "Success"
	}
	if err != nil {
		reply.Error = string(apperrors.GetCode(err))
		if appErr, ok := apperrors.AsAppError(err); ok && info == "" {
			reply.Info = appErr.Message
		} else if info == "" {
			reply.Info = "Internal error"
		}
	}
	return reply
}
