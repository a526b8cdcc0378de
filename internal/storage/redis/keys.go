package redis

import (
	"fmt"

	"github.com/mcoot/rankdir/internal/model"
)

// Key prefix for all directory data
const keyPrefix = "rankdir"

// accountKey returns the Redis key for an Account
func accountKey(id model.AccountID) string {
	return fmt.Sprintf("%s:account:%d", keyPrefix, id)
}

// accountSeqKey returns the Redis key of the account id counter
func accountSeqKey() string {
	return fmt.Sprintf("%s:seq:account", keyPrefix)
}

// scoreIndexKey returns the Redis key for the ZSET of account ids by score
func scoreIndexKey() string {
	return fmt.Sprintf("%s:idx:score", keyPrefix)
}

// identityKey returns the Redis key for an Identity
func identityKey(id model.AccountID) string {
	return fmt.Sprintf("%s:identity:%d", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> account_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// sessionKey returns the Redis key for an AuthSession
func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// sessionExpiryIndexKey returns the Redis key for the ZSET of session ids by deadline
func sessionExpiryIndexKey() string {
	return fmt.Sprintf("%s:idx:session_expiry", keyPrefix)
}

// queryCacheKey returns the Redis key for a cached query result
func queryCacheKey(key string) string {
	return fmt.Sprintf("%s:cache:query:%s", keyPrefix, key)
}
