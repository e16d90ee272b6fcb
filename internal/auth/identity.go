// Package auth verifies player identities against the external platform and
// issues admin session tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/config"
	"maze-rewards/internal/pkg/lock"
)

// ErrAuth is returned for any failed verification: a rejected token, a
// transport failure, a timeout or a malformed platform response.
var ErrAuth = errors.New("authentication failed")

// Identity is a verified player identity.
type Identity struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

// maxBodyBytes bounds how much of a platform response is read.
const maxBodyBytes = 64 << 10

// PlatformVerifier resolves bearer tokens via GET {base}/v2/me.
// Verified identities are cached for a short TTL; concurrent verifications
// of the same token share one upstream call.
type PlatformVerifier struct {
	baseURL string
	client  *http.Client
	cache   *lru.Cache
	ttl     time.Duration
	locks   *lock.KeyLock
	now     func() time.Time
}

// NewPlatformVerifier creates a verifier from platform configuration.
func NewPlatformVerifier(cfg config.PlatformConfig) (*PlatformVerifier, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity cache: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &PlatformVerifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		ttl:     cfg.CacheTTL,
		locks:   lock.NewKeyLock(),
		now:     time.Now,
	}, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (v *PlatformVerifier) cached(key string) (Identity, bool) {
	if v.ttl <= 0 {
		return Identity{}, false
	}
	raw, ok := v.cache.Get(key)
	if !ok {
		return Identity{}, false
	}
	entry := raw.(cachedIdentity)
	if !v.now().Before(entry.expires) {
		v.cache.Remove(key)
		return Identity{}, false
	}
	return entry.identity, true
}

// Verify resolves a bearer token into an Identity.
func (v *PlatformVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrAuth)
	}

	key := tokenKey(token)
	if id, ok := v.cached(key); ok {
		return id, nil
	}

	var id Identity
	err := v.locks.WithLockContext(ctx, key, v.client.Timeout, func() error {
		if cached, ok := v.cached(key); ok {
			id = cached
			return nil
		}
		fetched, err := v.fetch(ctx, token)
		if err != nil {
			return err
		}
		if v.ttl > 0 {
			v.cache.Add(key, cachedIdentity{identity: fetched, expires: v.now().Add(v.ttl)})
		}
		id = fetched
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return id, nil
}

func (v *PlatformVerifier) fetch(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v2/me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Identity platform unreachable")
		return Identity{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		log.Debug().Int("status", resp.StatusCode).Msg("Identity platform rejected token")
		return Identity{}, fmt.Errorf("%w: platform returned %d", ErrAuth, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed platform response: %v", ErrAuth, err)
	}
	if id.UID == "" {
		return Identity{}, fmt.Errorf("%w: platform response has no uid", ErrAuth)
	}

	log.Debug().
		Str("uid", id.UID).
		Dur("duration", time.Since(start)).
		Msg("Identity verified")
	return id, nil
}
