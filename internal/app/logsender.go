package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"crosspost/internal/transport"
)

// chatSender forwards log lines to an operator chat. It starts unbound (the
// log service is created before the transport adapter) and silently drops
// lines until bind is called.
type chatSender struct {
	mu     sync.RWMutex
	ad     transport.Adapter
	chatID int64
}

func (s *chatSender) bind(ad transport.Adapter, chatID int64) {
	s.mu.Lock()
	s.ad = ad
	s.chatID = chatID
	s.mu.Unlock()
}

func (s *chatSender) SendPlainText(text string) error {
	s.mu.RLock()
	ad, chatID := s.ad, s.chatID
	s.mu.RUnlock()
	if ad == nil || chatID == 0 {
		return errors.New("log chat not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ad.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
	return err
}
