package config

import "os"

// getenvOne is a thin os.Getenv wrapper kept for symmetry with getenv below;
// it exists so every env lookup in loader.go goes through this file and stays
// easy to stub in tests.
func getenvOne(key string) string {
	return os.Getenv(key)
}

// getenv returns the first non-empty value among the named environment
// variables, checked in order. Used where the teacher's env var names have
// drifted across revisions (e.g. OPENAI_BASE_URL / OPENAI_API_BASE_URL) and we
// want to accept either.
func getenv(keys ...string) string {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
