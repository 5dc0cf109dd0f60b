package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newTestService() *Service {
	s := NewService("test-secret", time.Hour)
	s.RegisterAccount("key-verified", "secret-verified", "user-1", true)
	s.RegisterAccount("key-observer", "secret-observer", "user-2", false)
	return s
}

func TestGenerateAndResolveToken(t *testing.T) {
	s := newTestService()

	resp, err := s.GenerateToken(Credentials{APIKey: "key-verified", APISecret: "secret-verified"})
	assert.Nil(t, err)
	check.True(t, resp.Expiration.After(time.Now()))

	bidder, err := s.Resolve(resp.Token)
	assert.Nil(t, err)
	check.Equal(t, "user-1", bidder.UserID)
	check.True(t, bidder.Verified)
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	s := newTestService()

	_, err := s.GenerateToken(Credentials{APIKey: "key-verified", APISecret: "wrong"})
	check.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = s.GenerateToken(Credentials{APIKey: "unknown", APISecret: "whatever"})
	check.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestResolve_UnverifiedAccount(t *testing.T) {
	s := newTestService()

	resp, err := s.GenerateToken(Credentials{APIKey: "key-observer", APISecret: "secret-observer"})
	assert.Nil(t, err)

	bidder, err := s.Resolve(resp.Token)
	assert.Nil(t, err)
	check.Equal(t, "user-2", bidder.UserID)
	check.False(t, bidder.Verified)
}

func TestResolve_RejectsGarbageToken(t *testing.T) {
	s := newTestService()

	_, err := s.Resolve("not-a-jwt")
	check.NotNil(t, err)
}

func TestResolve_RejectsTokenSignedWithOtherSecret(t *testing.T) {
	s := newTestService()
	other := NewService("different-secret", time.Hour)
	other.RegisterAccount("key-verified", "secret-verified", "user-1", true)

	resp, err := other.GenerateToken(Credentials{APIKey: "key-verified", APISecret: "secret-verified"})
	assert.Nil(t, err)

	_, err = s.Resolve(resp.Token)
	check.NotNil(t, err)
}

func TestResolve_RejectsExpiredToken(t *testing.T) {
	s := NewService("test-secret", -time.Minute)
	s.RegisterAccount("key-verified", "secret-verified", "user-1", true)

	resp, err := s.GenerateToken(Credentials{APIKey: "key-verified", APISecret: "secret-verified"})
	assert.Nil(t, err)

	_, err = s.Resolve(resp.Token)
	check.NotNil(t, err)
}
