package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy is a named strategy ready to evaluate requests.
type Policy struct {
	Name     string
	Strategy Strategy
	// Global policies apply to every request, not only to endpoints that name them.
	Global bool
}

// Factory builds the strategy for a policy on top of the registry's store. The
// store handed to the factory is scoped to the policy, see PolicyKey.
type Factory func(store Store) (Strategy, error)

// PolicyOption adjusts how a policy is registered.
type PolicyOption func(*policySpec)

// Global marks the policy as applying to every request.
func Global() PolicyOption {
	return func(s *policySpec) {
		s.global = true
	}
}

// AsDefault marks the policy as the fallback for endpoints that do not name one.
// When several policies are marked, the one registered last wins.
func AsDefault() PolicyOption {
	return func(s *policySpec) {
		s.isDefault = true
	}
}

type policySpec struct {
	name      string
	factory   Factory
	global    bool
	isDefault bool
}

// RegistryBuilder collects policy registrations and produces an immutable Registry.
type RegistryBuilder struct {
	store Store
	specs []policySpec
}

// NewRegistryBuilder creates a builder whose policies all share store.
func NewRegistryBuilder(store Store) *RegistryBuilder {
	return &RegistryBuilder{store: store}
}

// AddPolicy registers a policy built by factory.
func (b *RegistryBuilder) AddPolicy(name string, factory Factory, opts ...PolicyOption) *RegistryBuilder {
	spec := policySpec{name: name, factory: factory}
	for _, opt := range opts {
		opt(&spec)
	}

	b.specs = append(b.specs, spec)

	return b
}

// AddFixedWindowPolicy registers a fixed window policy.
func (b *RegistryBuilder) AddFixedWindowPolicy(
	name string, options FixedWindowOptions, opts ...PolicyOption,
) *RegistryBuilder {
	return b.AddPolicy(name, func(store Store) (Strategy, error) {
		return NewFixedWindowStrategy(store, options)
	}, opts...)
}

// AddTokenBucketPolicy registers a token bucket policy.
func (b *RegistryBuilder) AddTokenBucketPolicy(
	name string, options TokenBucketOptions, opts ...PolicyOption,
) *RegistryBuilder {
	return b.AddPolicy(name, func(store Store) (Strategy, error) {
		return NewTokenBucketStrategy(store, options)
	}, opts...)
}

// Build instantiates every registered strategy. Duplicate names, empty names and
// invalid strategy options are reported together.
func (b *RegistryBuilder) Build() (*Registry, error) {
	r := &Registry{
		policies: make(map[string]Policy, len(b.specs)),
		order:    make([]string, 0, len(b.specs)),
	}

	var errs []error

	for _, spec := range b.specs {
		if spec.name == "" {
			errs = append(errs, fmt.Errorf("%w: policy name must not be empty", ErrInvalidConfig))

			continue
		}

		if _, exists := r.policies[spec.name]; exists {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicatePolicy, spec.name))

			continue
		}

		if spec.factory == nil {
			errs = append(errs, fmt.Errorf("%w: policy %q has no factory", ErrInvalidConfig, spec.name))

			continue
		}

		strategy, err := spec.factory(b.scoped(spec.name))
		if err != nil {
			errs = append(errs, fmt.Errorf("policy %q: %w", spec.name, err))

			continue
		}

		r.policies[spec.name] = Policy{Name: spec.name, Strategy: strategy, Global: spec.global}
		r.order = append(r.order, spec.name)

		if spec.isDefault {
			r.defaultName = spec.name
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return r, nil
}

func (b *RegistryBuilder) scoped(policy string) Store {
	if b.store == nil {
		return nil
	}

	return policyStore{inner: b.store, policy: policy}
}

// PolicyKey returns the store key holding the counters of policy for a
// generated key. Policies sharing a key generator therefore never share state.
func PolicyKey(policy, key string) string {
	return key + ":" + policy
}

type policyStore struct {
	inner  Store
	policy string
}

func (s policyStore) GetAndUpdate(ctx context.Context, key string, asOf time.Time, fn UpdateFunc) (Record, error) {
	return s.inner.GetAndUpdate(ctx, PolicyKey(s.policy, key), asOf, fn)
}

// Registry maps policy names to ready strategies. It is read-only after Build
// and safe for concurrent use.
type Registry struct {
	policies    map[string]Policy
	order       []string
	defaultName string
}

// Resolve returns the policy registered under name.
func (r *Registry) Resolve(name string) (Policy, bool) {
	p, ok := r.policies[name]

	return p, ok
}

// Default returns the fallback policy, if one was marked.
func (r *Registry) Default() (Policy, bool) {
	if r.defaultName == "" {
		return Policy{}, false
	}

	return r.Resolve(r.defaultName)
}

// Globals returns the global policies in registration order.
func (r *Registry) Globals() []Policy {
	var globals []Policy

	for _, name := range r.order {
		if p := r.policies[name]; p.Global {
			globals = append(globals, p)
		}
	}

	return globals
}

// Names returns all policy names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Validate checks that every name refers to a registered policy.
func (r *Registry) Validate(names ...string) error {
	var errs []error

	for _, name := range names {
		if _, ok := r.policies[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownPolicy, name))
		}
	}

	return errors.Join(errs...)
}
