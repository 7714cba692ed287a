package access

import (
	"sort"
)

// Evaluate computes the restrictions of subject under rules. Inactive rules and
// rules scoped to another hospital are ignored. For every remaining rule a
// deny-list match restricts; otherwise a non-empty allow-list without a match
// restricts; an empty allow-list never restricts.
func Evaluate(rules []AccessRule, subject Subject) Restrictions {
	keys := subject.Keys
	if len(keys) == 0 {
		keys = LevelGuest.Keys()
	}

	var (
		pages    = map[string]bool{}
		features = map[string]bool{}
		apis     = map[string]bool{}
		messages = map[string]string{}
	)

	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive || !appliesToHospital(rule, subject.HospitalID) {
			continue
		}
		if !restricts(rule, keys) {
			continue
		}

		switch rule.ResourceType {
		case ResourceTypePage:
			pages[rule.ResourceKey] = true
		case ResourceTypeFeature:
			features[rule.ResourceKey] = true
		case ResourceTypeAPI:
			apis[rule.ResourceKey] = true
		default:
			continue
		}
		if rule.RestrictionMessage != "" {
			if _, ok := messages[rule.ResourceKey]; !ok {
				messages[rule.ResourceKey] = rule.RestrictionMessage
			}
		}
	}

	return Restrictions{
		RestrictedPages:    sortedKeys(pages),
		RestrictedFeatures: sortedKeys(features),
		RestrictedAPIs:     sortedKeys(apis),
		Messages:           messages,
	}
}

func restricts(rule *AccessRule, keys []string) bool {
	if containsAny(rule.DeniedRoles, keys) {
		return true
	}
	if len(rule.AllowedRoles) == 0 {
		return false
	}
	return !containsAny(rule.AllowedRoles, keys)
}

func appliesToHospital(rule *AccessRule, hospitalID *int64) bool {
	if rule.HospitalID == nil {
		return true
	}
	return hospitalID != nil && *hospitalID == *rule.HospitalID
}

func containsAny(list, keys []string) bool {
	for _, item := range list {
		for _, k := range keys {
			if item == k {
				return true
			}
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
