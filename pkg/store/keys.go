package store

import (
	"fmt"
	"strconv"
	"strings"

	"memodb/pkg/models"
)

// Key layout. Thread message keys sort by created timestamp with the
// per-thread sequence number as tiebreak, so a prefix scan yields
// chronological order directly.
//
//	thread:<threadID>:meta                      thread metadata JSON
//	thread:<threadID>:msg:<ts20>-<seq12>        message JSON
//	res:<resourceID>:msg:<ts20>-<seq12>         message JSON (denormalized)
//	msgid:<messageID>                           message JSON (idempotency index)
//	wm:<scope>:<key>                            working memory document JSON

func threadMetaKey(threadID string) []byte {
	return []byte("thread:" + threadID + ":meta")
}

func msgSuffix(ts int64, seq uint64) string {
	return fmt.Sprintf("%020d-%012d", ts, seq)
}

func msgKey(threadID string, ts int64, seq uint64) []byte {
	return []byte("thread:" + threadID + ":msg:" + msgSuffix(ts, seq))
}

func msgPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":msg:")
}

func resMsgKey(resourceID string, ts int64, seq uint64) []byte {
	return []byte("res:" + resourceID + ":msg:" + msgSuffix(ts, seq))
}

func resMsgPrefix(resourceID string) []byte {
	return []byte("res:" + resourceID + ":msg:")
}

func msgIDKey(msgID string) []byte {
	return []byte("msgid:" + msgID)
}

func wmKey(scope models.MemoryScope, key string) []byte {
	return []byte("wm:" + string(scope) + ":" + key)
}

// tsFromMsgKey extracts the timestamp component from a message key. Used
// by retention pruning.
func tsFromMsgKey(key []byte) (int64, bool) {
	k := string(key)
	i := strings.LastIndex(k, ":")
	if i < 0 || len(k) < i+21 {
		return 0, false
	}
	ts, err := strconv.ParseInt(k[i+1:i+21], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
