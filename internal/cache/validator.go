package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
)

// ValidationKey derives the cache key for validating source under cfg with
// the named rules. Any change to the source, the configuration or the rule
// set yields a different key.
func ValidationKey(source string, cfg constraint.Config, rules []string) (string, error) {
	encoded, err := json.Marshal(struct {
		Config constraint.Config
		Rules  []string
	}{cfg, rules})
	if err != nil {
		return "", fmt.Errorf("encode constraint config: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write(encoded)
	return "validate:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Validator wraps an Enforcer with a result cache. Cache failures are logged
// and fall through to a fresh validation.
type Validator struct {
	enforcer *constraint.Enforcer
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
	rules    []string
}

// NewValidator creates a caching validator. A zero ttl uses the cache default.
// A nil cache disables caching.
func NewValidator(enforcer *constraint.Enforcer, c Cache, ttl time.Duration, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rules []string
	for _, r := range enforcer.Rules() {
		rules = append(rules, r.Name())
	}
	return &Validator{enforcer: enforcer, cache: c, ttl: ttl, logger: logger, rules: rules}
}

// Enforcer returns the wrapped enforcer.
func (v *Validator) Enforcer() *constraint.Enforcer {
	return v.enforcer
}

// Validate returns the cached result for source when present, otherwise
// validates and stores it. hit reports whether the cache answered.
func (v *Validator) Validate(ctx context.Context, source string, override *constraint.Config) (result *constraint.ValidationResult, hit bool) {
	if v.cache == nil {
		return v.enforcer.ValidateWith(source, override), false
	}

	cfg := v.enforcer.Config()
	if override != nil {
		cfg = cfg.Merge(*override)
	}

	key, err := ValidationKey(source, cfg, v.rules)
	if err != nil {
		v.logger.Warn("cache key", zap.Error(err))
		return v.enforcer.ValidateWith(source, override), false
	}

	if data, err := v.cache.Get(ctx, key); err == nil {
		var cached constraint.ValidationResult
		if err := json.Unmarshal(data, &cached); err == nil {
			v.logger.Debug("validation cache hit", zap.String("key", key))
			return &cached, true
		}
		v.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	} else if !IsCacheMiss(err) {
		v.logger.Warn("cache get", zap.String("key", key), zap.Error(err))
	}

	result = v.enforcer.ValidateWith(source, override)
	data, err := json.Marshal(result)
	if err == nil {
		err = v.cache.Set(ctx, key, data, v.ttl)
	}
	if err != nil {
		v.logger.Warn("cache set", zap.String("key", key), zap.Error(err))
	}
	return result, false
}
