package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID identifies this process in logs and lock ownership. It prefers
// WALLETCORE_INSTANCE_ID, then the container hostname.
func InstanceID() string {
	if id := os.Getenv("WALLETCORE_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
