package llm

import (
	"context"
	"os"
	"sync"
)

// CredentialScope is acquired around every generative call. The returned
// release func restores whatever the scope changed and must be called on
// every exit path.
type CredentialScope interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// NopCredentialScope changes nothing.
type NopCredentialScope struct{}

// Acquire implements CredentialScope.
func (NopCredentialScope) Acquire(context.Context) (func(), error) {
	return func() {}, nil
}

// envSlot serializes environment changes across all EnvCredentialScopes in
// the process. A channel is used instead of a mutex so acquisition honors ctx.
var envSlot = make(chan struct{}, 1)

// EnvCredentialScope sets and clears environment variables for the duration
// of a call, then restores the previous values. Per-call acquisition only
// affects transports that read the environment when a call is made; clients
// that resolve credentials at construction are built inside the scope with
// NewScopedClient.
type EnvCredentialScope struct {
	Set   map[string]string
	Unset []string
}

// NewEnvCredentialScope returns the scope for a deployment mode.
func NewEnvCredentialScope(mode DeploymentMode, apiKey, credentialsFile string) *EnvCredentialScope {
	switch mode {
	case ModeServiceAccount:
		s := &EnvCredentialScope{Unset: []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}}
		if credentialsFile != "" {
			s.Set = map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": credentialsFile}
		}
		return s
	default:
		return &EnvCredentialScope{
			Set:   map[string]string{"GOOGLE_API_KEY": apiKey},
			Unset: []string{"GOOGLE_APPLICATION_CREDENTIALS"},
		}
	}
}

type envValue struct {
	value string
	ok    bool
}

// Acquire implements CredentialScope.
func (s *EnvCredentialScope) Acquire(ctx context.Context) (func(), error) {
	select {
	case envSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	prev := make(map[string]envValue, len(s.Set)+len(s.Unset))
	for k := range s.Set {
		v, ok := os.LookupEnv(k)
		prev[k] = envValue{v, ok}
	}
	for _, k := range s.Unset {
		v, ok := os.LookupEnv(k)
		prev[k] = envValue{v, ok}
	}

	for _, k := range s.Unset {
		_ = os.Unsetenv(k)
	}
	for k, v := range s.Set {
		_ = os.Setenv(k, v)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for k, p := range prev {
				if p.ok {
					_ = os.Setenv(k, p.value)
				} else {
					_ = os.Unsetenv(k)
				}
			}
			<-envSlot
		})
	}, nil
}
