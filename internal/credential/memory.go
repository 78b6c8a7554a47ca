package credential

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a TokenFetcher test double backed by a plain map.
type Memory struct {
	mu     sync.RWMutex
	tokens map[key]string
}

type key struct {
	service string
	account string
}

// NewMemory returns a Memory seeded with tokens, a map of "service:account"
// to bearer token.
func NewMemory(tokens map[string]string) *Memory {
	m := &Memory{tokens: make(map[key]string, len(tokens))}
	for k, v := range tokens {
		m.Set(serviceOf(k), accountOf(k), v)
	}
	return m
}

func serviceOf(combined string) string {
	for i := 0; i < len(combined); i++ {
		if combined[i] == ':' {
			return combined[:i]
		}
	}
	return combined
}

func accountOf(combined string) string {
	for i := 0; i < len(combined); i++ {
		if combined[i] == ':' {
			return combined[i+1:]
		}
	}
	return ""
}

// Set stores (or overwrites) the token for service/account.
func (m *Memory) Set(service, account, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key{service, account}] = token
}

// FetchToken implements TokenFetcher.
func (m *Memory) FetchToken(_ context.Context, service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[key{service, account}]
	if !ok {
		return "", fmt.Errorf("credential: no token for %s/%s", service, account)
	}
	return token, nil
}
