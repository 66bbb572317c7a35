// Package turnrest mints coturn-compatible TURN REST credentials.
//
// The relay hands these to browsers through the ICE config endpoint so media
// can traverse NAT without the relay ever touching it. The scheme follows
// draft-uberti-behave-turn-rest as implemented by coturn:
//
//	username   = <unix_expiry>:<prefix>:<connection_id>
//	credential = base64(hmac_sha1(shared_secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Credentials is one ephemeral TURN username/credential pair.
type Credentials struct {
	Username   string
	Credential string
	ExpiryUnix int64
}

// Config configures a Minter. Now and RandomID exist for deterministic tests
// and default to the real clock and a crypto/rand hex id.
type Config struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	Now      func() time.Time
	RandomID func() (string, error)
}

// Minter issues ephemeral TURN credentials from a shared secret.
type Minter struct {
	secret   []byte
	ttl      time.Duration
	prefix   string
	now      func() time.Time
	randomID func() (string, error)
}

func New(cfg Config) (*Minter, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("turnrest: shared secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("turnrest: TTL must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("turnrest: username prefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("turnrest: username prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandomID == nil {
		cfg.RandomID = randomHexID
	}
	return &Minter{
		secret:   []byte(cfg.SharedSecret),
		ttl:      cfg.TTL,
		prefix:   cfg.UsernamePrefix,
		now:      cfg.Now,
		randomID: cfg.RandomID,
	}, nil
}

// Mint issues credentials bound to the given connection id.
func (m *Minter) Mint(connectionID string) (Credentials, error) {
	if connectionID == "" {
		return Credentials{}, errors.New("turnrest: connection id is required")
	}
	if strings.Contains(connectionID, ":") {
		return Credentials{}, errors.New("turnrest: connection id must not contain ':'")
	}

	expiry := m.now().UTC().Add(m.ttl).Unix()
	username := fmt.Sprintf("%d:%s:%s", expiry, m.prefix, connectionID)

	mac := hmac.New(sha1.New, m.secret)
	_, _ = mac.Write([]byte(username))

	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiryUnix: expiry,
	}, nil
}

// MintRandom issues credentials with a random id, for callers that request
// ICE config before the relay has assigned them a connection id.
func (m *Minter) MintRandom() (Credentials, error) {
	id, err := m.randomID()
	if err != nil {
		return Credentials{}, err
	}
	return m.Mint(id)
}

func randomHexID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
