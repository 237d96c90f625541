package intent

import (
	"strings"

	"home-security/internal/domain"
)

// predicate reports whether a normalized phrase matches.
type predicate func(p phrase) bool

type rule struct {
	match  predicate
	intent domain.Intent
}

// rules are evaluated top to bottom; the first match wins. A phrase matching
// none of them is unknown.
var rules = []rule{
	{match: allOf(contains("lock"), not(contains("unlock"))), intent: domain.IntentLock},
	{match: contains("unlock"), intent: domain.IntentUnlock},
	{match: allOf(contains("arm"), not(contains("disarm"))), intent: domain.IntentArm},
	{match: contains("disarm"), intent: domain.IntentDisarm},
	{match: anyOf(contains("status"), contains("report")), intent: domain.IntentStatusReport},
}

func classify(p phrase) domain.Intent {
	for _, r := range rules {
		if r.match(p) {
			return r.intent
		}
	}
	return domain.IntentUnknown
}

// contains is plain substring containment: "clock" contains "lock" and
// "alarm" contains "arm".
func contains(keyword string) predicate {
	return func(p phrase) bool {
		return strings.Contains(p.text, keyword)
	}
}

func not(pred predicate) predicate {
	return func(p phrase) bool { return !pred(p) }
}

func allOf(preds ...predicate) predicate {
	return func(p phrase) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

func anyOf(preds ...predicate) predicate {
	return func(p phrase) bool {
		for _, pred := range preds {
			if pred(p) {
				return true
			}
		}
		return false
	}
}
