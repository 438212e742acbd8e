package service

import (
	"fmt"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// ApprovalPredicate reports whether a booking needs review before it runs.
// Predicates are independent so that new rules (another restricted probe,
// another flagged experiment) are configuration, not new control flow.
type ApprovalPredicate func(res models.Resource, req CreateRequest) (reason string, required bool)

// BuildApprovalPredicates compiles the configured rules plus the built-in
// probe-mismatch rule: requesting a probe other than the resource's current
// active probe means someone has to physically swap hardware, so a scheduler
// must sign off.
func BuildApprovalPredicates(rules models.ApprovalRules) []ApprovalPredicate {
	flagged := make(map[string]bool, len(rules.Experiments))
	for _, exp := range rules.Experiments {
		flagged[exp] = true
	}

	overrides := make(map[models.ResourceExperiment]bool, len(rules.ResourceOverrides))
	for _, o := range rules.ResourceOverrides {
		overrides[o] = true
	}

	restricted := make(map[models.ResourceProbe]bool, len(rules.RestrictedProbes))
	for _, r := range rules.RestrictedProbes {
		restricted[r] = true
	}

	return []ApprovalPredicate{
		func(_ models.Resource, req CreateRequest) (string, bool) {
			if flagged[req.Experiment] {
				return fmt.Sprintf("experiment %q requires approval", req.Experiment), true
			}
			return "", false
		},
		func(res models.Resource, req CreateRequest) (string, bool) {
			if overrides[models.ResourceExperiment{ResourceID: res.ID, Experiment: req.Experiment}] {
				return fmt.Sprintf("experiment %q requires approval on %s", req.Experiment, res.Name), true
			}
			return "", false
		},
		func(res models.Resource, req CreateRequest) (string, bool) {
			if res.ActiveProbe != "" && req.Probe != "" && req.Probe != res.ActiveProbe {
				return fmt.Sprintf("probe %q differs from mounted probe %q", req.Probe, res.ActiveProbe), true
			}
			return "", false
		},
		func(res models.Resource, req CreateRequest) (string, bool) {
			if restricted[models.ResourceProbe{ResourceID: res.ID, Probe: req.Probe}] {
				return fmt.Sprintf("probe %q is restricted on %s", req.Probe, res.Name), true
			}
			return "", false
		},
	}
}

// approvalReason returns the first matching predicate's reason.
func approvalReason(predicates []ApprovalPredicate, res models.Resource, req CreateRequest) (string, bool) {
	for _, p := range predicates {
		if reason, required := p(res, req); required {
			return reason, true
		}
	}
	return "", false
}
