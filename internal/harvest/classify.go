package harvest

// Rules configures classification. Matching is case-insensitive substring
// matching on normalized names, so "light" matches "Lights" and "Lighting".
type Rules struct {
	Exclusions []string
	Keywords   []string
}

// Classifier applies the rejection rules in fixed precedence and records
// accepted identities in a Registry. It is safe for concurrent use.
type Classifier struct {
	exclusions []string
	keywords   []string
	registry   *Registry
}

// NewClassifier creates a Classifier sharing registry with every other
// classifier of the run.
func NewClassifier(rules Rules, registry *Registry) *Classifier {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Classifier{
		exclusions: normalizeAll(rules.Exclusions),
		keywords:   normalizeAll(rules.Keywords),
		registry:   registry,
	}
}

// Classify returns the outcome for ec. Rules are checked in order and the
// first match wins:
//
//	excluded_chain, not_operational, no_keyword_match, no_contact, duplicate
//
// A candidate passing every rule is accepted; its identity is inserted into
// the registry in the same step that checks for duplicates.
func (c *Classifier) Classify(ec EnrichedCandidate) Outcome {
	if reason, ok := c.screen(ec.Name, ec.Status()); ok {
		return reject(ec, reason)
	}
	if NormalizePhone(ec.Enrichment.Phone) == "" {
		return reject(ec, ReasonNoContact)
	}
	if !c.registry.InsertIfAbsent(KeyOf(ec)) {
		return reject(ec, ReasonDuplicate)
	}
	lead := leadFrom(ec)
	return Outcome{Accepted: &lead}
}

// Prescreen applies the rules that need only search data. It returns the
// rejected outcome and true when the candidate can be rejected without a
// details lookup.
func (c *Classifier) Prescreen(cand Candidate) (Outcome, bool) {
	reason, ok := c.screen(cand.Name, cand.Status)
	if !ok {
		return Outcome{}, false
	}
	return reject(EnrichedCandidate{Candidate: cand}, reason), true
}

func (c *Classifier) screen(name string, status OperationalStatus) (Reason, bool) {
	norm := NormalizeName(name)
	if _, ok := containsAny(norm, c.exclusions); ok {
		return ReasonExcludedChain, true
	}
	if status.Known() && !status.Operational() {
		return ReasonNotOperational, true
	}
	if len(c.keywords) > 0 {
		if _, ok := containsAny(norm, c.keywords); !ok {
			return ReasonNoKeywordMatch, true
		}
	}
	return "", false
}

// Registry returns the registry shared by this classifier.
func (c *Classifier) Registry() *Registry { return c.registry }

func reject(ec EnrichedCandidate, reason Reason) Outcome {
	return Outcome{Rejected: &RejectedLead{Lead: leadFrom(ec), Reason: reason}}
}
