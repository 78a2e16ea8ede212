// Package model defines domain entities for the application.
package model

import "slices"

// Plan tier constants.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Plan feature names.
const (
	FeatureHTMLReport    = "html_report"
	FeatureJSONExport    = "json_export"
	FeatureWebhooks      = "webhooks"
	FeaturePriorityQueue = "priority_queue"
)

// PlanConfig defines the limits attached to a plan tier.
type PlanConfig struct {
	MonthlyAudits     int
	MaxURLs           int // Pages covered by a single audit (target + extra pages)
	RequestsPerMinute int
	Burst             int
	Features          []string
}

// PlanConfigs maps plan tiers to their limits.
var PlanConfigs = map[string]PlanConfig{
	PlanFree: {
		MonthlyAudits:     10,
		MaxURLs:           1,
		RequestsPerMinute: 60,
		Burst:             10,
		Features:          []string{FeatureHTMLReport},
	},
	PlanPro: {
		MonthlyAudits:     100,
		MaxURLs:           5,
		RequestsPerMinute: 600,
		Burst:             50,
		Features:          []string{FeatureHTMLReport, FeatureJSONExport, FeatureWebhooks},
	},
	PlanEnterprise: {
		MonthlyAudits:     1000,
		MaxURLs:           25,
		RequestsPerMinute: 0, // 0 means unlimited
		Burst:             0,
		Features:          []string{FeatureHTMLReport, FeatureJSONExport, FeatureWebhooks, FeaturePriorityQueue},
	},
}

// PlanConfigFor returns the configuration for a plan tier.
// Unknown tiers fall back to the free plan.
func PlanConfigFor(tier string) PlanConfig {
	if config, ok := PlanConfigs[tier]; ok {
		return config
	}
	return PlanConfigs[PlanFree]
}

// IsValidPlan checks if a tier name is a known plan.
func IsValidPlan(tier string) bool {
	_, ok := PlanConfigs[tier]
	return ok
}

// AuthContext holds authenticated request context.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	UserID    string
	KeyPrefix string
	Plan      string
}

// RateLimitConfig returns the request-rate limits for the context's plan.
func (a *AuthContext) RateLimitConfig() PlanConfig {
	return PlanConfigFor(a.Plan)
}

// HasFeature checks if the context's plan includes a feature.
func (a *AuthContext) HasFeature(feature string) bool {
	return slices.Contains(PlanConfigFor(a.Plan).Features, feature)
}
