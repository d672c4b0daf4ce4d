package tier

// Tier is a billing plan level determining default quotas.
type Tier string

const (
	TierAnalyst    Tier = "analyst"
	TierConsultant Tier = "consultant"
	TierEnterprise Tier = "enterprise"
)

// MetadataKey is the Stripe product metadata key carrying the tier name.
const MetadataKey = "tier"

// Limits holds the three quota axes for one feature.
type Limits struct {
	Create int64 `yaml:"create"`
	Update int64 `yaml:"update"`
	Delete int64 `yaml:"delete"`
}

// uniform builds a Limits with the same quota on every axis.
func uniform(n int64) Limits {
	return Limits{Create: n, Update: n, Delete: n}
}

// defaultLimits is the fixed lookup table of per-tier, per-feature defaults.
// Container and workspace quotas stay deliberately low on every tier since
// they represent whole GTM installations rather than individual objects.
var defaultLimits = map[Tier]map[Feature]Limits{
	TierAnalyst: {
		FeatureGTMTags:             uniform(10),
		FeatureGTMTriggers:         uniform(10),
		FeatureGTMVariables:        uniform(10),
		FeatureGTMBuiltInVariables: uniform(10),
		FeatureGTMContainers:       uniform(3),
		FeatureGTMWorkspaces:       uniform(3),
		FeatureGA4Properties:       uniform(3),
		FeatureGA4Streams:          uniform(5),
		FeatureGA4CustomDimensions: uniform(10),
		FeatureGA4CustomMetrics:    uniform(10),
		FeatureGA4KeyEvents:        uniform(10),
		FeatureGA4AccessBindings:   uniform(10),
	},
	TierConsultant: {
		FeatureGTMTags:             uniform(50),
		FeatureGTMTriggers:         uniform(50),
		FeatureGTMVariables:        uniform(50),
		FeatureGTMBuiltInVariables: uniform(50),
		FeatureGTMContainers:       uniform(10),
		FeatureGTMWorkspaces:       uniform(10),
		FeatureGA4Properties:       uniform(10),
		FeatureGA4Streams:          uniform(20),
		FeatureGA4CustomDimensions: uniform(50),
		FeatureGA4CustomMetrics:    uniform(50),
		FeatureGA4KeyEvents:        uniform(50),
		FeatureGA4AccessBindings:   uniform(50),
	},
	TierEnterprise: {
		FeatureGTMTags:             uniform(200),
		FeatureGTMTriggers:         uniform(200),
		FeatureGTMVariables:        uniform(200),
		FeatureGTMBuiltInVariables: uniform(200),
		FeatureGTMContainers:       uniform(50),
		FeatureGTMWorkspaces:       uniform(50),
		FeatureGA4Properties:       uniform(50),
		FeatureGA4Streams:          uniform(100),
		FeatureGA4CustomDimensions: uniform(200),
		FeatureGA4CustomMetrics:    uniform(200),
		FeatureGA4KeyEvents:        uniform(200),
		FeatureGA4AccessBindings:   uniform(200),
	},
}

// Defaults returns the per-feature default limits for a tier.
// The second return value is false for unknown tiers; callers must then skip
// limit creation entirely rather than guess at quotas.
func Defaults(t Tier) (map[Feature]Limits, bool) {
	limits, ok := defaultLimits[t]
	if !ok {
		return nil, false
	}
	// Copy so callers cannot mutate the shared table.
	out := make(map[Feature]Limits, len(limits))
	for f, l := range limits {
		out[f] = l
	}
	return out, true
}

// Override replaces the defaults table, typically with a table loaded from a
// FileSource at startup. Must be called before any lookups are served.
func Override(table map[Tier]map[Feature]Limits) {
	if len(table) == 0 {
		return
	}
	defaultLimits = table
}

// FromMetadata derives the tier from Stripe product metadata.
// Returns false when the metadata carries no recognizable tier.
func FromMetadata(metadata map[string]string) (Tier, bool) {
	name, ok := metadata[MetadataKey]
	if !ok {
		return "", false
	}
	t := Tier(name)
	if _, known := defaultLimits[t]; !known {
		return "", false
	}
	return t, true
}
