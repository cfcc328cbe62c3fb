// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/models/zammad"
	"github.com/tomtom215/ticktrack/internal/store"
)

// featuresKey is the key-value store key for the persisted feature flags.
const featuresKey = "feature_flags"

// Capability is a tri-state deployment capability: unknown until probed,
// then supported or unsupported.
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilitySupported
	CapabilityUnsupported
)

func (c Capability) String() string {
	switch c {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the capability as a JSON string.
func (c Capability) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts the string form and, for persisted flags written by
// earlier versions, booleans (true = supported, false = unsupported).
func (c *Capability) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"supported"`, "true":
		*c = CapabilitySupported
	case `"unsupported"`, "false":
		*c = CapabilityUnsupported
	default:
		*c = CapabilityUnknown
	}
	return nil
}

// FeatureFlags records what the connected deployment can do. Flags stay
// unknown until DetectFeatures runs; each probe settles its flags
// independently so one failing probe never blanks the others.
type FeatureFlags struct {
	// Version and About are the deployment metadata endpoints.
	Version Capability `json:"version"`
	About   Capability `json:"about"`

	// CurrentUser is the /users/me profile endpoint.
	CurrentUser Capability `json:"current_user"`

	// TimeAccounting is the time-accounting subsystem. A 403 probe answer
	// means the subsystem exists but the token lacks access, which still
	// counts as supported.
	TimeAccounting Capability `json:"time_accounting"`

	// Search is the ticket search endpoint, same 403 rule.
	Search Capability `json:"search"`

	// VersionString is the reported server version when the version endpoint
	// answered.
	VersionString string `json:"version_string,omitempty"`
}

// Features returns a copy of the current feature flags.
func (c *Client) Features() FeatureFlags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.features
}

func (c *Client) loadFeatures() {
	var flags FeatureFlags
	if err := c.store.GetJSON(featuresKey, &flags); err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			logging.Warn().Err(err).Msg("failed to load persisted feature flags")
		}
		return
	}
	c.mu.Lock()
	c.features = flags
	c.mu.Unlock()
}

func (c *Client) clearFeatures() {
	c.mu.Lock()
	c.features = FeatureFlags{}
	c.mu.Unlock()
	if err := c.store.Delete(featuresKey); err != nil {
		logging.Warn().Err(err).Msg("failed to clear persisted feature flags")
	}
}

func (c *Client) persistFeatures() {
	c.mu.RLock()
	flags := c.features
	c.mu.RUnlock()
	if err := c.store.SetJSON(featuresKey, flags); err != nil {
		logging.Warn().Err(err).Msg("failed to persist feature flags")
	}
}

// DetectFeatures probes the deployment and settles every feature flag.
// The probes are independent: a failure in one leaves the others intact.
// The complete flag set is persisted once at the end so a crash mid-probe
// never leaves a partial persisted state.
func (c *Client) DetectFeatures(ctx context.Context) FeatureFlags {
	if !c.IsInitialized() {
		return c.Features()
	}

	log := logging.Ctx(ctx)
	probeOpts := requestOptions{noRetry: true}

	// Probe 1: deployment metadata. about is only tried when version fails,
	// newer deployments removed it.
	version, about := CapabilityUnsupported, CapabilityUnknown
	versionString := ""
	if result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/version", nil, probeOpts); err == nil {
		var vr zammad.VersionResponse
		if decodeErr := result.Decode(&vr); decodeErr == nil {
			version = CapabilitySupported
			versionString = vr.Version
		}
	}
	if version != CapabilitySupported {
		about = CapabilityUnsupported
		if result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/about", nil, probeOpts); err == nil {
			var ar zammad.AboutResponse
			if decodeErr := result.Decode(&ar); decodeErr == nil {
				about = CapabilitySupported
				versionString = ar.Version
			}
		}
	}

	// Probe 2: user profile.
	currentUser := CapabilityUnsupported
	if _, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/users/me", nil, probeOpts); err == nil {
		currentUser = CapabilitySupported
	}

	// Probe 3: time accounting and search. A 403 proves the endpoint exists
	// behind a permission wall, so it settles as supported.
	timeAccounting := probeCapability(ctx, c, "/api/v1/time_accountings?limit=1")
	search := probeCapability(ctx, c, "/api/v1/tickets/search?query=test&limit=1")

	c.mu.Lock()
	c.features.Version = version
	c.features.About = about
	c.features.CurrentUser = currentUser
	c.features.TimeAccounting = timeAccounting
	c.features.Search = search
	if versionString != "" {
		c.features.VersionString = versionString
	}
	flags := c.features
	c.mu.Unlock()

	c.persistFeatures()

	log.Info().
		Str("version", flags.Version.String()).
		Str("current_user", flags.CurrentUser.String()).
		Str("time_accounting", flags.TimeAccounting.String()).
		Str("search", flags.Search.String()).
		Str("server_version", flags.VersionString).
		Msg("feature detection complete")

	return flags
}

// probeCapability performs one GET probe and classifies the answer:
// success or 403 mean supported, anything else unsupported.
func probeCapability(ctx context.Context, c *Client, path string) Capability {
	_, err := c.executeRequest(ctx, http.MethodGet, path, nil, requestOptions{noRetry: true})
	if err == nil {
		return CapabilitySupported
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.StatusCode == http.StatusForbidden {
		return CapabilitySupported
	}
	return CapabilityUnsupported
}

// DetectSessionConflict checks whether an ambient browser session for the
// same deployment belongs to a different account than the configured token.
// sessionUserID is the id the caller extracted from its own session; zero
// means no session. Returns true only when both identities are known and
// differ.
func (c *Client) DetectSessionConflict(ctx context.Context, sessionUserID int) (bool, error) {
	if sessionUserID == 0 {
		return false, nil
	}
	user, err := c.CurrentUser(ctx, false)
	if err != nil {
		return false, err
	}
	if user.ID != sessionUserID {
		logging.Ctx(ctx).Warn().
			Int("token_user", user.ID).
			Int("session_user", sessionUserID).
			Msg("ambient session belongs to a different account than the configured token")
		return true, nil
	}
	return false, nil
}
