// Package tgui holds small Telegram UI helpers: inline keyboards and
// message-size handling. It is the only place outside the transport
// adapter that knows about telebot types.
package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// MaxMessageLen is Telegram's hard text message limit.
const MaxMessageLen = 4096

// InlineConfirm builds a one-row confirm/cancel keyboard with raw callback
// payloads (no telebot unique-routing, the router matches on the payload).
func InlineConfirm(confirmText, confirmData, cancelText, cancelData string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: confirmText, Data: confirmData},
			{Text: cancelText, Data: cancelData},
		}},
	}
}

// Clip truncates s to Telegram's message limit, marking the cut.
func Clip(s string) string {
	if len(s) <= MaxMessageLen {
		return s
	}
	return s[:MaxMessageLen-4] + "\n..."
}
