package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/asaskevich/govalidator"
	jsonpatch "github.com/evanphx/json-patch"
)

// Architectures decide how a slot partner splits slots into requests.
const (
	// ArchitectureSRA sends one request for all the slots of a retrieval cycle.
	ArchitectureSRA = "SRA"
	// ArchitectureMRA sends one request per xSlot.
	ArchitectureMRA = "MRA"
)

// Partner is the profile of one demand partner. It carries the identity the partner reports
// with and the settings the request lifecycle reads.
type Partner struct {
	// Adapter names the partner implementation. It defaults to the profile key.
	Adapter       string `mapstructure:"adapter" json:"adapter,omitempty"`
	PartnerID     string `mapstructure:"partner_id" json:"partner_id"`
	Namespace     string `mapstructure:"namespace" json:"namespace"`
	StatsID       string `mapstructure:"stats_id" json:"stats_id"`
	Version       string `mapstructure:"version" json:"version"`
	Endpoint      string `mapstructure:"endpoint" json:"endpoint"`
	TargetingType string `mapstructure:"targeting_type" json:"targeting_type"`

	EnabledAnalytics EnabledAnalytics `mapstructure:"enabled_analytics" json:"enabled_analytics"`
	Features         Features         `mapstructure:"features" json:"features"`

	TargetingKeys map[string]string `mapstructure:"targeting_keys" json:"targeting_keys,omitempty"`
	LineItemType  string            `mapstructure:"line_item_type" json:"line_item_type,omitempty"`
	CallbackType  string            `mapstructure:"callback_type" json:"callback_type,omitempty"`
	Architecture  string            `mapstructure:"architecture" json:"architecture,omitempty"`
	RequestType   string            `mapstructure:"request_type" json:"request_type,omitempty"`

	Method          string `mapstructure:"method" json:"method,omitempty"`
	TimeoutMS       uint64 `mapstructure:"timeout_ms" json:"timeout_ms,omitempty"`
	WithCredentials bool   `mapstructure:"with_credentials" json:"with_credentials"`

	// XSlots holds the partner parameters of each xSlot, keyed by xSlot name.
	XSlots map[string]map[string]interface{} `mapstructure:"x_slots" json:"x_slots,omitempty"`
	// Mapping lists the xSlots to request for each htSlot name. Keys are lower case.
	Mapping map[string][]string `mapstructure:"mapping" json:"mapping,omitempty"`

	Disabled bool `mapstructure:"disabled" json:"disabled"`
}

type EnabledAnalytics struct {
	RequestTime bool `mapstructure:"request_time" json:"request_time"`
}

type Features struct {
	DemandExpiry Feature `mapstructure:"demand_expiry" json:"demand_expiry"`
	RateLimiting Feature `mapstructure:"rate_limiting" json:"rate_limiting"`
}

// Feature is an optional behaviour with a millisecond value.
type Feature struct {
	Enabled bool  `mapstructure:"enabled" json:"enabled"`
	Value   int64 `mapstructure:"value" json:"value"`
}

// Duration returns the feature value as a duration, or 0 if the feature is off.
func (f Feature) Duration() time.Duration {
	if !f.Enabled || f.Value <= 0 {
		return 0
	}
	return time.Duration(f.Value) * time.Millisecond
}

// XSlotsFor returns the xSlot names mapped to an htSlot name.
func (p *Partner) XSlotsFor(htSlotName string) []string {
	return p.Mapping[strings.ToLower(htSlotName)]
}

// XSlotParams returns the parameters configured for an xSlot.
func (p *Partner) XSlotParams(xSlotName string) (map[string]interface{}, bool) {
	if params, ok := p.XSlots[xSlotName]; ok {
		return params, true
	}
	params, ok := p.XSlots[strings.ToLower(xSlotName)]
	return params, ok
}

// TargetingKey returns the configured targeting key for name, or fallback if none is set.
func (p *Partner) TargetingKey(name, fallback string) string {
	if key, ok := p.TargetingKeys[name]; ok && key != "" {
		return key
	}
	return fallback
}

// normalize lower cases the htSlot and xSlot keys so lookups do not depend on the config source.
func (p *Partner) normalize() {
	if len(p.Mapping) > 0 {
		mapping := make(map[string][]string, len(p.Mapping))
		for htSlot, xSlots := range p.Mapping {
			mapping[strings.ToLower(htSlot)] = xSlots
		}
		p.Mapping = mapping
	}
	if len(p.XSlots) > 0 {
		xSlots := make(map[string]map[string]interface{}, len(p.XSlots))
		for name, params := range p.XSlots {
			xSlots[strings.ToLower(name)] = params
		}
		p.XSlots = xSlots
	}
}

func (p *Partner) validate(name string, errs []error) []error {
	if p.PartnerID == "" {
		errs = append(errs, fmt.Errorf("partners.%s.partner_id must be set", name))
	}
	if err := p.ValidateEndpoint(); err != nil {
		errs = append(errs, fmt.Errorf("partners.%s.%v", name, err))
	}
	switch p.TargetingType {
	case "page", "slot":
	default:
		errs = append(errs, fmt.Errorf("partners.%s.targeting_type must be \"page\" or \"slot\". Got %q", name, p.TargetingType))
	}
	switch p.Architecture {
	case "", ArchitectureSRA, ArchitectureMRA:
	default:
		errs = append(errs, fmt.Errorf("partners.%s.architecture must be %q or %q. Got %q", name, ArchitectureSRA, ArchitectureMRA, p.Architecture))
	}
	for htSlot, xSlots := range p.Mapping {
		for _, xSlot := range xSlots {
			if _, ok := p.XSlotParams(xSlot); !ok {
				errs = append(errs, fmt.Errorf("partners.%s.mapping.%s references unknown xSlot %q", name, htSlot, xSlot))
			}
		}
	}
	return errs
}

// ValidateEndpoint checks that the partner endpoint is an absolute request URL.
func (p *Partner) ValidateEndpoint() error {
	if p.Endpoint == "" {
		return errors.New("endpoint must be set")
	}
	// IsURL accepts "example.com/bid" and IsRequestURL accepts "http://http://example.com",
	// so both have to pass.
	if !validator.IsURL(p.Endpoint) || !validator.IsRequestURL(p.Endpoint) {
		return fmt.Errorf("endpoint %q is not a valid URL", p.Endpoint)
	}
	return nil
}

// ApplyPartnerOverride merges a JSON merge patch (RFC 7386) over a partner profile and returns
// the result. The original profile is left untouched.
func ApplyPartnerOverride(partner Partner, override json.RawMessage) (Partner, error) {
	if len(override) == 0 {
		return partner, nil
	}
	original, err := json.Marshal(partner)
	if err != nil {
		return partner, err
	}
	merged, err := jsonpatch.MergePatch(original, override)
	if err != nil {
		return partner, fmt.Errorf("invalid override for partner %s: %v", partner.PartnerID, err)
	}
	var result Partner
	if err := json.Unmarshal(merged, &result); err != nil {
		return partner, fmt.Errorf("override for partner %s does not produce a valid profile: %v", partner.PartnerID, err)
	}
	result.normalize()
	return result, nil
}
