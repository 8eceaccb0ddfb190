package boltstore

import (
	"encoding/binary"
	"strings"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta     = []byte("meta")
	bucketObjects  = []byte("objects")
	bucketPlayers  = []byte("players")
	bucketAccounts = []byte("accounts")
	bucketJournal  = []byte("journal")
	bucketStats    = []byte("stats")
)

// Meta key constants.
var (
	keySchema = []byte("schema")
	keyLobby  = []byte("lobby")
)

const schemaVersion = 1

// refToKey converts a DBRef to an 8-byte big-endian key.
// We offset by a large constant so negative DBRefs (Nothing=-1, etc.) sort correctly.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a DBRef.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// seqToKey converts a bucket sequence number to a sortable key.
func seqToKey(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// nameKey is the case-folded player name index key.
func nameKey(name string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(name)))
}

// keyToSeq converts a journal key back to its sequence number.
func keyToSeq(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
