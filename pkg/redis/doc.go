// Package redis provides a retrying connection helper and health-check probe
// around the go-redis client.
//
// Config is populated from environment variables via pkg/config. The
// subscription package uses the resulting client for its read-through
// snapshot cache of the current subscription row.
package redis
