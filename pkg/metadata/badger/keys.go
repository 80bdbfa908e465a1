package badger

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// ============================================================================
// Key Schema
// ============================================================================
//
// The store uses namespaced key prefixes to organize data types in a single
// BadgerDB keyspace. All values are JSON except cursors, which are big-endian
// uint64 so that log keys sort in sequence order.
//
//	u:<user-uuid>                  -> User
//	un:<username>                  -> user uuid (string)
//	r:<user-uuid>                  -> root node uuid (string)
//	n:<node-uuid>                  -> FileNode (including tombstones)
//	c:<parent-uuid>:<name>         -> child node uuid (string, live nodes only)
//	ss:<user-uuid>:<device-id>     -> SyncSession
//	sl:<token>                     -> ShareLink
//	log:<user-uuid>:<seq BE8>      -> ChangeOp
//	floor:<user-uuid>              -> Cursor (BE8, highest trimmed seq)
//	head:<user-uuid>               -> Cursor (BE8, highest assigned seq)
//
// UUIDs are stored in canonical 36-character form, making every prefix a
// fixed width and keys human-readable in debugging tools.

func keyUser(id uuid.UUID) []byte {
	return []byte("u:" + id.String())
}

func keyUsername(username string) []byte {
	return []byte("un:" + username)
}

func keyRoot(userID uuid.UUID) []byte {
	return []byte("r:" + userID.String())
}

func keyNode(id uuid.UUID) []byte {
	return []byte("n:" + id.String())
}

func keyChild(parentID uuid.UUID, name string) []byte {
	return []byte("c:" + parentID.String() + ":" + name)
}

// prefixChildren is the scan prefix for a directory's live children.
func prefixChildren(parentID uuid.UUID) []byte {
	return []byte("c:" + parentID.String() + ":")
}

func keySession(userID uuid.UUID, deviceID string) []byte {
	return []byte("ss:" + userID.String() + ":" + deviceID)
}

func prefixSessions(userID uuid.UUID) []byte {
	return []byte("ss:" + userID.String() + ":")
}

func keyShareLink(token string) []byte {
	return []byte("sl:" + token)
}

const prefixShareLinks = "sl:"

func keyLog(userID uuid.UUID, seq metadata.Cursor) []byte {
	key := make([]byte, 0, 4+36+1+8)
	key = append(key, "log:"...)
	key = append(key, userID.String()...)
	key = append(key, ':')
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], uint64(seq))
	return append(key, seqBytes[:]...)
}

func prefixLog(userID uuid.UUID) []byte {
	return []byte("log:" + userID.String() + ":")
}

func keyFloor(userID uuid.UUID) []byte {
	return []byte("floor:" + userID.String())
}

func keyHead(userID uuid.UUID) []byte {
	return []byte("head:" + userID.String())
}

const prefixNodes = "n:"

func encodeCursor(cursor metadata.Cursor) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(cursor))
	return buf[:]
}

func decodeCursor(val []byte) metadata.Cursor {
	if len(val) != 8 {
		return 0
	}
	return metadata.Cursor(binary.BigEndian.Uint64(val))
}
