// Package tier defines the static catalog of per-tier entitlement limits.
package tier

import "github.com/vitalscope/vitalscope-business/internal/models"

// Model identifiers offered to report generation.
const (
	// ModelStandard is the default model available to every tier.
	ModelStandard = "insight-standard"
	// ModelAdvanced is the premium model reserved for the plus tier.
	ModelAdvanced = "insight-advanced"
)

// Limits holds the immutable quota and capability ceilings for one tier.
type Limits struct {
	MaxDataDays    int      // Maximum data range, in days, a report may cover.
	WeeklyReports  int      // Reports per week (entry tier; 0 means the pooled counter governs).
	ChatPerReport  int      // Chat messages per report (entry tier; 0 means the pooled counter governs).
	DailyPooled    int      // Daily pooled report+chat actions (plus tier; 0 means unused).
	DailySnapshots int      // Daily snapshot requests; 0 means snapshots are denied.
	AllowedModels  []string // Permitted model identifiers.
	DefaultModel   string   // Substitute model when a requested one is not permitted.
	ReportHistory  bool     // Whether past reports remain visible.
}

// catalog maps tier names to their limits. Values are fixed at build time;
// changing them requires no other component to change.
var catalog = map[string]Limits{
	models.TierEntry: {
		MaxDataDays:    90,
		WeeklyReports:  1,
		ChatPerReport:  1,
		DailyPooled:    0,
		DailySnapshots: 0,
		AllowedModels:  []string{ModelStandard},
		DefaultModel:   ModelStandard,
		ReportHistory:  false,
	},
	models.TierPlus: {
		MaxDataDays:    365,
		WeeklyReports:  0,
		ChatPerReport:  0,
		DailyPooled:    10,
		DailySnapshots: 1,
		AllowedModels:  []string{ModelStandard, ModelAdvanced},
		DefaultModel:   ModelAdvanced,
		ReportHistory:  true,
	},
}

// LimitsFor returns the limits for a tier, falling back to the entry tier for
// unknown tier names. Total: never fails.
func LimitsFor(name string) Limits {
	if limits, ok := catalog[name]; ok {
		return limits
	}
	return catalog[models.TierEntry]
}

// UsesPooledQuota reports whether a tier meters reports and chat from the
// shared daily pool instead of independent counters.
func UsesPooledQuota(name string) bool {
	return LimitsFor(name).DailyPooled > 0
}

// ModelAllowed reports whether a tier may use the given model.
func ModelAllowed(name, model string) bool {
	for _, allowed := range LimitsFor(name).AllowedModels {
		if allowed == model {
			return true
		}
	}
	return false
}
