package audit

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

type hasher struct {
	key []byte
}

func newHasher(key []byte) hasher {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return hasher{key: key}
}

func (h hasher) sum(userID *uuid.UUID, action enums.AuditAction, entityType enums.AuditEntityType, entityID string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is bounded in newHasher
		panic(err)
	}
	user := ""
	if userID != nil {
		user = userID.String()
	}
	for _, part := range []string{user, string(action), string(entityType), entityID} {
		_, _ = mac.Write([]byte(part))
		_, _ = mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func (h hasher) verify(record models.AuditRecord) bool {
	expected := h.sum(record.UserID, record.Action, record.EntityType, record.EntityID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(record.IntegrityHash)) == 1
}
