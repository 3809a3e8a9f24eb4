// Package deviceid derives origin-scoped source ids from raw device ids so
// that requesters never see hardware identifiers and cannot correlate a
// device across origins.
package deviceid

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const saltSize = 32

// ResourceContext holds the secret salt of one browsing profile. A nil
// *ResourceContext is usable and behaves as an empty salt.
type ResourceContext struct {
	salt []byte
}

// NewResourceContext creates a context with a fixed salt
func NewResourceContext(salt []byte) *ResourceContext {
	return &ResourceContext{salt: append([]byte(nil), salt...)}
}

// RandomResourceContext creates a context with a fresh random salt
func RandomResourceContext() (*ResourceContext, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return &ResourceContext{salt: salt}, nil
}

func (rc *ResourceContext) key() []byte {
	if rc == nil {
		return nil
	}
	return rc.salt
}

// SourceID maps a raw device id to the id exposed to origin
func (rc *ResourceContext) SourceID(origin, deviceID string) string {
	return hex.EncodeToString(rc.sum(origin, deviceID))
}

// Matches reports whether sourceID was derived from deviceID for origin
func (rc *ResourceContext) Matches(origin, sourceID, deviceID string) bool {
	raw, err := hex.DecodeString(sourceID)
	if err != nil {
		return false
	}
	return hmac.Equal(raw, rc.sum(origin, deviceID))
}

// Resolve finds the raw id among deviceIDs that sourceID was derived from
func (rc *ResourceContext) Resolve(origin, sourceID string, deviceIDs []string) (string, bool) {
	for _, id := range deviceIDs {
		if rc.Matches(origin, sourceID, id) {
			return id, true
		}
	}
	return "", false
}

func (rc *ResourceContext) sum(origin, deviceID string) []byte {
	mac := hmac.New(sha256.New, rc.key())

	// Length prefix keeps ("a", "bc") apart from ("ab", "c")
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(origin)))
	mac.Write(n[:])
	mac.Write([]byte(origin))
	mac.Write([]byte(deviceID))
	return mac.Sum(nil)
}
