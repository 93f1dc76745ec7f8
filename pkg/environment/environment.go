package environment

import (
	"context"
	"os"
)

// Provider resolves named values from the environment. Model providers use
// it for API keys and tools use it for their configuration self-checks.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

type osEnv struct{}

// NewOS returns a Provider backed by the process environment.
func NewOS() Provider {
	return osEnv{}
}

func (osEnv) Get(_ context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// Map is a fixed, in-memory Provider used by tests and for per-run
// configuration snapshots.
type Map map[string]string

func (m Map) Get(_ context.Context, name string) (string, error) {
	return m[name], nil
}
