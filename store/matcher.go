package store

// Matcher selects which incoming Requests a Prime answers.
type Matcher struct {
	Kind Kind

	// Query is the literal query text for KindQuery/KindPrepare matchers.
	Query string

	// Consistencies, if non-empty, restricts matching to requests carrying
	// one of these consistency level names. Empty means "any consistency".
	Consistencies []string

	// Params, if non-empty, requires the request to carry exactly these
	// bound values (by name or index), each of the declared Type, with
	// Value equal to the expected one or the expected one being Wildcard.
	Params []Param
}

// Accepts reports whether req is matched by m, per the rules in §4.3:
// kind tags must agree except that a KindQuery matcher also accepts
// KindExecute and KindBatch requests (Execute is resolved to its underlying
// query text by the caller before Find is invoked; a Batch request carries
// no query text, so only a matcher with an empty Query accepts it).
func (m Matcher) Accepts(req Request) bool {
	switch m.Kind {
	case KindAny:
		return true
	case KindStartup, KindOptions:
		return req.Kind == m.Kind
	case KindPrepare:
		return req.Kind == KindPrepare && m.Query == req.QueryString
	case KindQuery:
		if req.Kind != KindQuery && req.Kind != KindExecute && req.Kind != KindBatch {
			return false
		}
		return m.queryAccepts(req)
	default:
		return false
	}
}

func (m Matcher) queryAccepts(req Request) bool {
	if m.Query != req.QueryString {
		return false
	}
	if len(m.Consistencies) > 0 && !containsString(m.Consistencies, req.Consistency) {
		return false
	}
	return paramsMatch(m.Params, req.Params, req.Decode)
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// paramsMatch implements the declared-parameter matching rule: a matcher
// with no declared params matches any request params; otherwise the
// request must carry exactly the same set of names/indices, the same
// declared types (compared only where both sides declare one), and equal or
// wildcard values. If decode is non-nil, an actual
// value carried as raw []byte is first decoded per the expected Type.
func paramsMatch(expected, actual []Param, decode DecodeFunc) bool {
	if len(expected) == 0 {
		return true
	}
	if len(expected) != len(actual) {
		return false
	}
	for _, exp := range expected {
		act, ok := findParam(actual, exp)
		if !ok {
			return false
		}
		if exp.Type != "" && act.Type != "" && exp.Type != act.Type {
			return false
		}
		if exp.Value == Wildcard {
			continue
		}
		actValue := act.Value
		if raw, isRaw := actValue.([]byte); isRaw && decode != nil {
			decoded, err := decode(exp.Type, raw)
			if err != nil {
				return false
			}
			actValue = decoded
		}
		if exp.Value != actValue {
			return false
		}
	}
	return true
}
