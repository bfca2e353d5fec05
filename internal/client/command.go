package client

import (
	"errors"
	"strings"

	"github.com/openclaw/messenger-server-go/internal/model"
)

var (
	ErrQuit        = errors.New("quit")
	ErrNotLoggedIn = errors.New("log in first with /login <name> or /register <name>")
	ErrUsage       = errors.New("commands: /register <name>, /login <name>, /logout, /users, /status <name>, /all <text>, @<user> <text>, /quit")
)

// ParseCommand turns one line typed at the prompt into a message from login.
// A bare line with no prefix goes to everyone.
func ParseCommand(line, login string) (model.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Message{}, ErrUsage
	}

	if strings.HasPrefix(line, "@") {
		receiver, text, _ := strings.Cut(line[1:], " ")
		if receiver == "" || strings.TrimSpace(text) == "" {
			return model.Message{}, ErrUsage
		}
		return authed(login, model.Message{Type: model.TypeText, Receiver: receiver, Text: strings.TrimSpace(text)})
	}

	if !strings.HasPrefix(line, "/") {
		return authed(login, model.Message{Type: model.TypeBroadcast, Text: line})
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return model.Message{}, ErrQuit
	case "register", "login":
		if arg == "" {
			return model.Message{}, ErrUsage
		}
		t := model.TypeLogin
		if cmd == "register" {
			t = model.TypeRegister
		}
		return model.Message{Type: t, Sender: arg}, nil
	case "logout":
		return authed(login, model.Message{Type: model.TypeLogout})
	case "users":
		return authed(login, model.Message{Type: model.TypeGetUsers})
	case "status":
		if arg == "" {
			return model.Message{}, ErrUsage
		}
		return authed(login, model.Message{Type: model.TypeSetStatus, Text: arg})
	case "all":
		if arg == "" {
			return model.Message{}, ErrUsage
		}
		return authed(login, model.Message{Type: model.TypeBroadcast, Text: arg})
	default:
		return model.Message{}, ErrUsage
	}
}

func authed(login string, msg model.Message) (model.Message, error) {
	if login == "" {
		return model.Message{}, ErrNotLoggedIn
	}
	msg.Sender = login
	return msg, nil
}
