package protocol

import (
	"fmt"
	"regexp"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

const (
	MaxLoginLength = 31
	MaxBodyLength  = 511
)

var loginRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,31}$`)

func IsValidLogin(login string) bool {
	if login == "" {
		return false
	}
	return loginRegex.MatchString(login)
}

func ValidateLogin(login string) error {
	if !IsValidLogin(login) {
		return apperrors.InvalidLogin(login)
	}
	return nil
}

func ValidateBody(text string) error {
	if len(text) > MaxBodyLength {
		return apperrors.MessageTooLong(len(text), MaxBodyLength)
	}
	return nil
}

// ValidateMessage runs the checks every accepted message must pass. It never
// looks at directory state.
func ValidateMessage(msg model.Message) error {
	if !msg.Type.Inbound() {
		return apperrors.InvalidMessage("unknown message type")
	}
	if err := ValidateLogin(msg.Sender); err != nil {
		return err
	}

	switch msg.Type {
	case model.TypeText:
		if err := ValidateLogin(msg.Receiver); err != nil {
			return err
		}
		return ValidateBody(msg.Text)
	case model.TypeBroadcast:
		return ValidateBody(msg.Text)
	case model.TypeSetStatus:
		_, err := RequestedStatus(msg)
		return err
	}
	return nil
}

// RequestedStatus reads the target of a set_status message. A status name in
// the text wins over the numeric field.
func RequestedStatus(msg model.Message) (model.Status, error) {
	if msg.Text != "" {
		status, ok := model.ParseStatus(msg.Text)
		if !ok {
			return 0, apperrors.InvalidMessage(fmt.Sprintf("unknown status %q", msg.Text))
		}
		return status, nil
	}
	if !msg.Status.Valid() {
		return 0, apperrors.InvalidMessage("status out of range")
	}
	return msg.Status, nil
}
