package tier

// Feature is a named capability unit with independent create/update/delete
// quotas. Feature names are immutable reference data.
type Feature string

// Known features across Google Tag Manager and Google Analytics 4.
const (
	FeatureGTMTags             Feature = "GTMTags"
	FeatureGTMTriggers         Feature = "GTMTriggers"
	FeatureGTMVariables        Feature = "GTMVariables"
	FeatureGTMBuiltInVariables Feature = "GTMBuiltInVariables"
	FeatureGTMContainers       Feature = "GTMContainers"
	FeatureGTMWorkspaces       Feature = "GTMWorkspaces"
	FeatureGA4Properties       Feature = "GA4Properties"
	FeatureGA4Streams          Feature = "GA4Streams"
	FeatureGA4CustomDimensions Feature = "GA4CustomDimensions"
	FeatureGA4CustomMetrics    Feature = "GA4CustomMetrics"
	FeatureGA4KeyEvents        Feature = "GA4KeyEvents"
	FeatureGA4AccessBindings   Feature = "GA4AccessBindings"
)

// Features lists every known feature in a stable order. The reconciler
// iterates this list when materializing tier feature limits for a product.
func Features() []Feature {
	return []Feature{
		FeatureGTMTags,
		FeatureGTMTriggers,
		FeatureGTMVariables,
		FeatureGTMBuiltInVariables,
		FeatureGTMContainers,
		FeatureGTMWorkspaces,
		FeatureGA4Properties,
		FeatureGA4Streams,
		FeatureGA4CustomDimensions,
		FeatureGA4CustomMetrics,
		FeatureGA4KeyEvents,
		FeatureGA4AccessBindings,
	}
}

// Valid reports whether f is one of the known features.
func Valid(f Feature) bool {
	for _, known := range Features() {
		if f == known {
			return true
		}
	}
	return false
}
