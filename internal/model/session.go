package model

import "time"

// Session is a login known to the directory.
type Session struct {
	Login        string    `json:"login"`
	Status       Status    `json:"status"`
	Handle       string    `json:"-"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s Session) Online() bool {
	return s.Status.Online()
}
