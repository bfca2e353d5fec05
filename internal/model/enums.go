package model

import "fmt"

type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusAway
	StatusBusy
	StatusInvisible
)

var statusNames = [...]string{
	StatusOffline:   "offline",
	StatusOnline:    "online",
	StatusAway:      "away",
	StatusBusy:      "busy",
	StatusInvisible: "invisible",
}

func (s Status) Valid() bool {
	return s >= StatusOffline && s <= StatusInvisible
}

// Online reports whether the status counts towards the online total.
func (s Status) Online() bool {
	return s.Valid() && s != StatusOffline
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return StatusOffline, false
}

type MessageType uint8

const (
	TypeRegister MessageType = iota + 1
	TypeLogin
	TypeLogout
	TypeText
	TypeBroadcast
	TypeGetUsers
	TypeSetStatus
	TypeAck
	TypeError
	TypeUserList
	TypeSystem
	TypeUserJoined
	TypeUserLeft
	TypeChat
)

var messageTypeNames = map[MessageType]string{
	TypeRegister:   "register",
	TypeLogin:      "login",
	TypeLogout:     "logout",
	TypeText:       "text",
	TypeBroadcast:  "broadcast",
	TypeGetUsers:   "get_users",
	TypeSetStatus:  "set_status",
	TypeAck:        "ack",
	TypeError:      "error",
	TypeUserList:   "user_list",
	TypeSystem:     "system",
	TypeUserJoined: "user_joined",
	TypeUserLeft:   "user_left",
	TypeChat:       "chat",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Inbound reports whether clients may send this type to the server.
func (t MessageType) Inbound() bool {
	return t >= TypeRegister && t <= TypeSetStatus
}

// Command reports whether the type expects a reply on the command channel.
func (t MessageType) Command() bool {
	switch t {
	case TypeRegister, TypeLogin, TypeLogout, TypeGetUsers:
		return true
	}
	return false
}

type Flags uint16

const (
	FlagEncrypted    Flags = 1 << 0
	FlagUrgent       Flags = 1 << 1
	FlagReadReceipt  Flags = 1 << 2
	FlagDelayed      Flags = 1 << 3
	FlagOfflineStore Flags = 1 << 4
	FlagSystem       Flags = 1 << 5
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}
