// Package errorcache suppresses repeated display of the same backend failure
// and paces retries with exponential backoff.
//
// Entries are keyed by operation name plus canonical variables (DeriveKey).
// A Cache applies the suppression rules over a Store, which is either
// process-local (MemoryStore) or shared through Redis (RedisStore).
package errorcache
