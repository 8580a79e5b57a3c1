package tts

import (
	"fmt"
)

// ReferencePolicy selects how the presence of reference_language,
// reference_text and ref_audio is checked.
type ReferencePolicy string

const (
	// ReferencePolicyStrict requires all three inputs or none of them.
	ReferencePolicyStrict ReferencePolicy = "strict"

	// ReferencePolicyLegacy evaluates (lang != text) != audio left to right.
	// Language and transcript without audio passes; the default clip is then
	// used with the request transcript.
	ReferencePolicyLegacy ReferencePolicy = "legacy"

	// ReferencePolicyPairwise evaluates (lang != text) && (text != audio),
	// which is how the deployed Python server reads `a != b != c`.
	ReferencePolicyPairwise ReferencePolicy = "pairwise"
)

// ParseReferencePolicy validates a configured policy name.
func ParseReferencePolicy(name string) (ReferencePolicy, error) {
	switch policy := ReferencePolicy(name); policy {
	case ReferencePolicyStrict, ReferencePolicyLegacy, ReferencePolicyPairwise:
		return policy, nil
	case "":
		return ReferencePolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown reference policy %q", name)
	}
}

// Incomplete reports whether the presence flags are rejected by the policy.
func (p ReferencePolicy) Incomplete(hasLanguage, hasText, hasAudio bool) bool {
	switch p {
	case ReferencePolicyLegacy:
		return (hasLanguage != hasText) != hasAudio
	case ReferencePolicyPairwise:
		return hasLanguage != hasText && hasText != hasAudio
	default:
		allPresent := hasLanguage && hasText && hasAudio
		allAbsent := !hasLanguage && !hasText && !hasAudio

		return !allPresent && !allAbsent
	}
}

// Validator checks a decoded request before it may reach the gateway.
type Validator struct {
	policy    ReferencePolicy
	languages Languages
}

// NewValidator creates a validator for the given policy and language tables.
func NewValidator(policy ReferencePolicy, languages Languages) *Validator {
	return &Validator{policy: policy, languages: languages}
}

// Validate returns nil when the request may be synthesized.
func (v *Validator) Validate(req *SynthesisRequest, hasAudio bool) error {
	if v.policy.Incomplete(req.ReferenceLanguage != "", req.ReferenceText != "", hasAudio) {
		return ErrIncompleteReferenceSet
	}

	if _, ok := v.languages.Target(req.TargetLanguage); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTargetLanguage, req.TargetLanguage)
	}

	if req.ReferenceLanguage != "" {
		if _, ok := v.languages.Reference(req.ReferenceLanguage); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidReferenceLanguage, req.ReferenceLanguage)
		}
	}

	return nil
}
