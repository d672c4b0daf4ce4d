// Package redis establishes the Redis connection backing the quota cache.
// Connection setup retries within a bounded window so a service restart does
// not race Redis coming up.
package redis
