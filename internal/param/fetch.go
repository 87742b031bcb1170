package param

import (
	"context"
	"fmt"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
	FetchAll(context.Context, string) ([]string, error)
}

// Resolve returns the parameter at path, or fallback when path is empty.
func Resolve(ctx context.Context, f Fetcher, path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	v, err := f.Fetch(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to fetch parameter %s: %w", path, err)
	}
	return v, nil
}

// ResolveAll is Resolve for parameter hierarchies.
func ResolveAll(ctx context.Context, f Fetcher, path string, fallback []string) ([]string, error) {
	if path == "" {
		return fallback, nil
	}
	v, err := f.FetchAll(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parameters under %s: %w", path, err)
	}
	if len(v) == 0 {
		return fallback, nil
	}
	return v, nil
}
