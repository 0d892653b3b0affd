package config

import (
	"os"
	"sort"
)

// Env is the source of environment-style settings. Only the CLI layer hands
// in the real process environment; everything else receives a Config.
type Env interface {
	Getenv(key string) string
	Environ() []string
}

// OSEnv reads the process environment.
type OSEnv struct{}

// Getenv returns os.Getenv(key).
func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// Environ returns os.Environ().
func (OSEnv) Environ() []string { return os.Environ() }

// MapEnv is an in-memory Env, mostly for tests.
type MapEnv map[string]string

// Getenv returns the value for key, or "".
func (m MapEnv) Getenv(key string) string { return m[key] }

// Environ returns KEY=VALUE entries sorted by key.
func (m MapEnv) Environ() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
