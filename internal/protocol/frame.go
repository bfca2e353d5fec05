package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the leading field of a fan-out frame.
type Kind string

const (
	KindSystem    Kind = "SYS"
	KindMessage   Kind = "MSG"
	KindOffline   Kind = "OFFLINE"
	KindBroadcast Kind = "BROADCAST"
)

const (
	SystemSender = "system"
	AllReceivers = "*"
)

// Frame is one line on the fan-out channel:
//
//	KIND:sender:receiver:text:unix-timestamp
//
// Lines that do not split into five fields are kept verbatim in Raw.
type Frame struct {
	Kind      Kind   `json:"kind,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Receiver  string `json:"receiver,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

func (f Frame) IsRaw() bool {
	return f.Kind == ""
}

func (f Frame) String() string {
	if f.IsRaw() {
		return f.Raw
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", f.Kind, f.Sender, f.Receiver, f.Text, f.Timestamp)
}

func SystemNotice(text string, ts int64) Frame {
	return Frame{Kind: KindSystem, Sender: SystemSender, Receiver: AllReceivers, Text: text, Timestamp: ts}
}

func DirectMessage(sender, receiver, text string, ts int64) Frame {
	return Frame{Kind: KindMessage, Sender: sender, Receiver: receiver, Text: text, Timestamp: ts}
}

func OfflineMessage(sender, receiver, text string, ts int64) Frame {
	return Frame{Kind: KindOffline, Sender: sender, Receiver: receiver, Text: text, Timestamp: ts}
}

func BroadcastMessage(sender, text string, ts int64) Frame {
	return Frame{Kind: KindBroadcast, Sender: sender, Receiver: AllReceivers, Text: text, Timestamp: ts}
}

// Parse splits a fan-out line. The timestamp is taken from the last field so
// the text itself may contain colons.
func Parse(line string) Frame {
	line = strings.TrimRight(line, "\r\n")

	head := strings.SplitN(line, ":", 4)
	if len(head) < 4 {
		return Frame{Raw: line}
	}
	rest := head[3]
	idx := strings.LastIndex(rest, ":")
	if idx < 0 || head[0] == "" {
		return Frame{Raw: line}
	}
	ts, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return Frame{Raw: line}
	}

	return Frame{
		Kind:      Kind(head[0]),
		Sender:    head[1],
		Receiver:  head[2],
		Text:      rest[:idx],
		Timestamp: ts,
	}
}

// Display renders a frame the way a terminal client shows it.
func (f Frame) Display() string {
	switch f.Kind {
	case "":
		return f.Raw
	case KindSystem:
		return "[system] " + f.Text
	case KindBroadcast:
		return fmt.Sprintf("[all] %s: %s", f.Sender, f.Text)
	case KindOffline:
		return fmt.Sprintf("[offline] %s: %s", f.Sender, f.Text)
	default:
		return fmt.Sprintf("%s: %s", f.Sender, f.Text)
	}
}
