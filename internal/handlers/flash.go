package handlers

import (
	"encoding/gob"

	"github.com/gin-contrib/sessions"
)

const (
	captchaSessionKey = "captcha_answer"
	messagesFlashKey  = "_messages"
	formFlashKey      = "_form"
)

// Flash is a one-shot message shown on the next page.
type Flash struct {
	Level string // success, danger
	Text  string
}

// FormCarryOver re-presents a rejected form on the next page of the same
// session.
type FormCarryOver struct {
	Values map[string]string
	Errors map[string]string
}

func init() {
	gob.Register(Flash{})
	gob.Register(FormCarryOver{})
}

func popMessages(session sessions.Session) []Flash {
	var messages []Flash
	for _, v := range session.Flashes(messagesFlashKey) {
		if m, ok := v.(Flash); ok {
			messages = append(messages, m)
		}
	}
	return messages
}

// popCarryOver returns the last carried-over form, or an empty one.
func popCarryOver(session sessions.Session) FormCarryOver {
	carry := FormCarryOver{Values: map[string]string{}, Errors: map[string]string{}}
	for _, v := range session.Flashes(formFlashKey) {
		if f, ok := v.(FormCarryOver); ok {
			carry = f
		}
	}
	return carry
}
