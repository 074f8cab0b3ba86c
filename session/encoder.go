package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is written into every encoded session.
const CurrentSchemaVersion uint8 = 1

const maxFieldLength = 512

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

// Encode serializes s into the JSON blob stored in Redis.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if s.SessionID == "" || s.Identity == "" || s.Role == "" {
		return nil, errors.New("session id, identity and role are required")
	}
	for name, v := range map[string]string{
		"identity":  s.Identity,
		"device":    s.Device,
		"userAgent": s.UserAgent,
		"location":  s.Location,
	} {
		if len(v) > maxFieldLength {
			return nil, fmt.Errorf("%s too long", name)
		}
	}

	out := *s
	out.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(&out)
}

// Decode parses a stored blob. Blobs written by a newer schema are rejected.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, ErrSessionCorrupt
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if s.SchemaVersion == 0 || s.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrSessionCorrupt, s.SchemaVersion)
	}
	if s.SessionID == "" || s.Identity == "" || s.Role == "" {
		return nil, fmt.Errorf("%w: missing key fields", ErrSessionCorrupt)
	}
	return &s, nil
}
