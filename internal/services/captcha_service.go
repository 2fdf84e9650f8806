package services

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	captchaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	captchaLength   = 5
)

type CaptchaService struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCaptchaService() *CaptchaService {
	return &CaptchaService{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateChallenge returns the uppercase challenge to display and the
// lowercase answer to keep in the session.
func (s *CaptchaService) GenerateChallenge() (challenge, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := make([]byte, captchaLength)
	for i := range b {
		b[i] = captchaAlphabet[s.rnd.Intn(len(captchaAlphabet))]
	}
	challenge = string(b)
	return challenge, strings.ToLower(challenge)
}

// Verify compares a response with the stored answer, ignoring case and
// surrounding spaces. An empty answer never verifies.
func (s *CaptchaService) Verify(answer, response string) bool {
	if answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(response), answer)
}
