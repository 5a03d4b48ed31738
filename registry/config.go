// Package registry resolves per-session configuration: the model-to-strategy
// table (§6.3) and the effective STT/LLM/recording configuration a Session
// consumes at start (§6.2), including admin-key delegation.
package registry

// ProviderConfig is the credential and endpoint configuration for a single
// STT or LLM provider slot. Mirrors the "per-provider keyed map" described in
// spec.md §6.2: a user may hold distinct base_url/api_key pairs per provider
// name, plus a currently-selected provider/model pair.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	// Keyed holds additional per-provider overrides, keyed by provider name,
	// for users who configured more than one provider's credentials.
	Keyed map[string]ProviderCredential
}

// ProviderCredential is one entry of the per-provider keyed credential map.
type ProviderCredential struct {
	BaseURL string
	APIKey  string
}

// RecordingConfig holds the recording/segment tunables of spec.md §6.2.
type RecordingConfig struct {
	AudioBufferDuration  float64
	SilenceThreshold     float64
	SegmentSoftThreshold int
	SegmentHardThreshold int
	RPMLimit             int
}

// DefaultSilenceThreshold is used when a user has not overridden it
// (spec.md §6.2; mirrors original_source's TranscriptionSession default).
const DefaultSilenceThreshold = 30.0

// DefaultSegmentSoftThreshold and DefaultSegmentHardThreshold are the
// documented defaults when a user has not overridden them.
const (
	DefaultSegmentSoftThreshold = 30
	DefaultSegmentHardThreshold = 60
)

// ClampRPM applies the legacy translation_mode → RPM mapping from spec.md
// §6.2 and §4.6: values below 10 (including historical 0 and 6) map to 100;
// values above 300 clamp to 300; otherwise the value passes through.
func ClampRPM(v int) int {
	switch {
	case v < 10:
		return 100
	case v > 300:
		return 300
	default:
		return v
	}
}

// UserConfig is the subset of a user's stored configuration relevant to the
// core: STT and LLM provider selection plus recording tunables. Account
// management, billing, and the remaining user profile are out of the core's
// scope (spec.md §1) and are not modeled here.
type UserConfig struct {
	UserID          string
	STT             ProviderConfig
	LLM             ProviderConfig
	Recording       RecordingConfig
	CanUseAdminKey  bool
	IsAdmin         bool
}

// EffectiveConfig is the fully resolved configuration a Session acts on:
// credential fields come from whichever of {user, admin} the delegation rule
// selects, while the recording/segment preferences always remain the user's
// own (spec.md §6.2: "non-credential preferences remain the user's own").
type EffectiveConfig struct {
	STT       ProviderConfig
	LLM       ProviderConfig
	Recording RecordingConfig
}

// Resolve implements the "use admin's keys" rule: when user.CanUseAdminKey
// is set and the user is not themselves an admin, STT and LLM credential
// fields come from admin, but Recording and any non-credential preference
// stay the user's own. Grounded on
// original_source/backend/app/api/deps.py's get_effective_config.
func Resolve(user UserConfig, admin *UserConfig) EffectiveConfig {
	eff := EffectiveConfig{
		STT:       user.STT,
		LLM:       user.LLM,
		Recording: user.Recording,
	}
	if user.CanUseAdminKey && !user.IsAdmin && admin != nil {
		eff.STT = admin.STT
		eff.LLM = admin.LLM
	}
	eff.Recording.RPMLimit = ClampRPM(eff.Recording.RPMLimit)
	if eff.Recording.SegmentSoftThreshold <= 0 {
		eff.Recording.SegmentSoftThreshold = DefaultSegmentSoftThreshold
	}
	if eff.Recording.SegmentHardThreshold <= 0 {
		eff.Recording.SegmentHardThreshold = DefaultSegmentHardThreshold
	}
	if eff.Recording.SilenceThreshold <= 0 {
		eff.Recording.SilenceThreshold = DefaultSilenceThreshold
	}
	return eff
}
