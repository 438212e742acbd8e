package models

// ApprovalRules configures when a new reservation starts PENDING instead of
// APPROVED. The predicates are independent; any single match requires review.
type ApprovalRules struct {
	// Experiments lists experiment codes that always need approval.
	Experiments []string `yaml:"experiments"`
	// ResourceOverrides flags specific (resource, experiment) pairs.
	ResourceOverrides []ResourceExperiment `yaml:"resource_overrides"`
	// RestrictedProbes flags specific (resource, probe) pairs.
	RestrictedProbes []ResourceProbe `yaml:"restricted_probes"`
}

type ResourceExperiment struct {
	ResourceID int64  `yaml:"resource_id"`
	Experiment string `yaml:"experiment"`
}

type ResourceProbe struct {
	ResourceID int64  `yaml:"resource_id"`
	Probe      string `yaml:"probe"`
}
