package acquisition

// ClassifyPolicy controls how a session list without an Active entry is read.
type ClassifyPolicy int

const (
	// ClassifyFirstEntry only inspects the first summary once no Active
	// session exists. The listing order is trusted.
	ClassifyFirstEntry ClassifyPolicy = iota
	// ClassifyScanAll looks through every summary for a StandingBy session.
	// It is diagnostic only: a list without an Active session still leads to
	// a new allocation, and only the recorded reason differs.
	ClassifyScanAll
)

// ParseClassifyPolicy maps a config value to a policy; unknown values select
// ClassifyFirstEntry.
func ParseClassifyPolicy(s string) ClassifyPolicy {
	if s == "scan" {
		return ClassifyScanAll
	}
	return ClassifyFirstEntry
}

// Classification is the outcome of evaluating a session list.
type Classification int

const (
	ActiveWithPlayers Classification = iota
	ActiveIdle
	StandingBy
	Unusable
)

func (c Classification) String() string {
	switch c {
	case ActiveWithPlayers:
		return "active_with_players"
	case ActiveIdle:
		return "active"
	case StandingBy:
		return "standing_by"
	default:
		return "unusable"
	}
}

// Reusable reports whether the classified session should be joined rather
// than replaced by a fresh allocation.
func (c Classification) Reusable() bool {
	return c == ActiveWithPlayers || c == ActiveIdle
}

// Classify picks the session to act on. Active sessions with players win,
// then any Active session, in listed order. Otherwise the list is not
// reusable and the returned classification only explains why.
func Classify(summaries []SessionSummary, policy ClassifyPolicy) (SessionSummary, Classification) {
	for _, s := range summaries {
		if s.State == StateActive && s.ConnectedPlayerCount > 0 {
			return s, ActiveWithPlayers
		}
	}
	for _, s := range summaries {
		if s.State == StateActive {
			return s, ActiveIdle
		}
	}
	if len(summaries) == 0 {
		return SessionSummary{}, Unusable
	}

	if policy == ClassifyScanAll {
		for _, s := range summaries {
			if s.State == StateStandingBy {
				return s, StandingBy
			}
		}
		return summaries[0], Unusable
	}

	first := summaries[0]
	if first.State == StateStandingBy {
		return first, StandingBy
	}
	return first, Unusable
}
