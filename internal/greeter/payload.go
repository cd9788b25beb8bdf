package greeter

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/theme"
)

// encMode uses Core Deterministic Encoding so equal payloads encode to
// identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so an older child can read a newer payload.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("greeter: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("greeter: CBOR decoder initialization failed: " + err.Error())
	}
}

// Payload is everything a greeter process needs. It is a copy taken at
// spawn time; parent and child share nothing afterwards.
type Payload struct {
	Display     string                `cbor:"display"`
	Cookie      auth.Cookie           `cbor:"cookie"`
	Theme       theme.Descriptor      `cbor:"theme"`
	Sessions    config.SessionsConfig `cbor:"sessions"`
	Users       config.UsersConfig    `cbor:"users"`
	AuthHelper  string                `cbor:"auth_helper"`
	Power       bool                  `cbor:"power"`
	CursorTheme string                `cbor:"cursor_theme"`
	PasswdPath  string                `cbor:"passwd_path,omitempty"`
	Preview     bool                  `cbor:"preview,omitempty"`
	Verbose     bool                  `cbor:"verbose,omitempty"`
}

// NewPayload builds the payload for one iteration.
func NewPayload(cfg *config.Config, display string, cookie auth.Cookie, d *theme.Descriptor) *Payload {
	return &Payload{
		Display:     display,
		Cookie:      cookie,
		Theme:       *d,
		Sessions:    cfg.Sessions,
		Users:       cfg.Users,
		AuthHelper:  cfg.Auth.Helper,
		Power:       cfg.Power.Enabled,
		CursorTheme: cfg.CursorTheme(),
	}
}

// Validate checks that a payload can drive a greeter.
func (p *Payload) Validate() error {
	if p.Theme.MainScript == "" {
		return fmt.Errorf("payload has no theme main script")
	}
	if p.Preview {
		return nil
	}
	if p.Display == "" {
		return fmt.Errorf("payload has no display")
	}
	if len(p.Cookie) != auth.CookieSize {
		return fmt.Errorf("payload cookie has %d bytes, want %d", len(p.Cookie), auth.CookieSize)
	}
	return nil
}

// Marshal encodes p.
func (p *Payload) Marshal() ([]byte, error) {
	return encMode.Marshal(p)
}

// ReadPayload decodes and validates a payload from r.
func ReadPayload(r io.Reader) (*Payload, error) {
	var p Payload
	if err := decMode.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode greeter payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
