package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func GroupListKey(bundleIdentifier, version string) string {
	return fmt.Sprintf("groups:%s:%s", bundleIdentifier, version)
}
