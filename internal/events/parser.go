package events

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/bypassd/internal/model"
)

// protoTag matches an optional " [TLS]" / " [HTTP]" suffix.
const protoTag = `(?:\s+\[((?i:tls|https?))\])?`

var (
	reCurrent = regexp.MustCompile(`\bCURRENT\s+(\S+)\s+strategy=(\d+)` + protoTag + `\s+state=(LEARNING|LOCKED)\b`)
	reLocked  = regexp.MustCompile(`\bLOCKED\s+(\S+)\s+to\s+strategy=(\d+)` + protoTag)
	reUnlock  = regexp.MustCompile(`\bUNLOCKING\s+(\S+)` + protoTag)
	reSticky  = regexp.MustCompile(`\bSTICKY\s+(\S+)\s+to\s+strategy=(\d+)`)
	reUnstick = regexp.MustCompile(`\bUNSTICKY\s+(\S+)` + protoTag)
	rePreload = regexp.MustCompile(`\bPRELOADED\s+(\S+)\s+strategy=(\d+)` + protoTag)
	reHistory = regexp.MustCompile(`\bHISTORY\s+(\S+)\s+strategy=(\d+)\s+successes=(\d+)\s+failures=(\d+)(?:\s+rate=(\d+)%)?`)
	reStats   = regexp.MustCompile(`\bstrategy-stats:\s+(SUCCESS|FAIL)\s+(\S+)\s+strategy=(\d+)(?:\s+count=(\d+))?` + protoTag)
	reRst     = regexp.MustCompile(`\bRST injection detected\b.*?\bin_bytes=(\d+)`)
	reNew     = regexp.MustCompile(`\bNEW\s+(\S+)\s+starting\b`)
)

// matcher tries one line shape. ok=false means "not this shape".
type matcher func(line string) (Event, bool)

// matchers run in order; the first hit wins. CURRENT lines can end in
// "state=LOCKED", so they are tried before the LOCKED shape.
var matchers = []matcher{
	parseStats,
	parseCurrent,
	parseHistory,
	parseLocked,
	parseUnlocking,
	parseUnsticky,
	parseSticky,
	parsePreloaded,
	parseRst,
	parseNew,
}

// Parse classifies one line of engine output.
//
// Returns (nil, false) for any line that is not a recognized event. Parse
// never panics and keeps no state between calls.
func Parse(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	for _, m := range matchers {
		if ev, ok := m(line); ok {
			return ev, true
		}
	}
	return nil, false
}

func parseLocked(line string) (Event, bool) {
	m := reLocked.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[1], m[2])
	if !ok {
		return nil, false
	}
	return Locked{Domain: domain, Strategy: strategy, Protocol: protocol(m[3])}, true
}

func parseUnlocking(line string) (Event, bool) {
	m := reUnlock.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain := model.NormalizeDomain(m[1])
	if domain == "" {
		return nil, false
	}
	return Unlocking{Domain: domain, Protocol: protocol(m[2])}, true
}

func parseSticky(line string) (Event, bool) {
	m := reSticky.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[1], m[2])
	if !ok {
		return nil, false
	}
	return Sticky{Domain: domain, Strategy: strategy}, true
}

func parseUnsticky(line string) (Event, bool) {
	m := reUnstick.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain := model.NormalizeDomain(m[1])
	if domain == "" {
		return nil, false
	}
	return Unsticky{Domain: domain, Protocol: protocol(m[2])}, true
}

func parsePreloaded(line string) (Event, bool) {
	m := rePreload.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[1], m[2])
	if !ok {
		return nil, false
	}
	return Preloaded{Domain: domain, Strategy: strategy, Protocol: protocol(m[3])}, true
}

func parseHistory(line string) (Event, bool) {
	m := reHistory.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[1], m[2])
	if !ok {
		return nil, false
	}
	s, err1 := strconv.Atoi(m[3])
	f, err2 := strconv.Atoi(m[4])
	if err1 != nil || err2 != nil {
		return nil, false
	}
	c := model.Counters{Successes: s, Failures: f}
	rate := c.Rate()
	if m[5] != "" {
		if r, err := strconv.Atoi(m[5]); err == nil {
			rate = r
		}
	}
	return HistorySnapshot{Domain: domain, Strategy: strategy, Successes: s, Failures: f, Rate: rate}, true
}

func parseStats(line string) (Event, bool) {
	m := reStats.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[2], m[3])
	if !ok {
		return nil, false
	}
	count := 0
	if m[4] != "" {
		if n, err := strconv.Atoi(m[4]); err == nil {
			count = n
		}
	}
	p := protocol(m[5])
	if m[1] == "SUCCESS" {
		return Success{Domain: domain, Strategy: strategy, Protocol: p, Count: count}, true
	}
	return Fail{Domain: domain, Strategy: strategy, Protocol: p, Count: count}, true
}

func parseCurrent(line string) (Event, bool) {
	m := reCurrent.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain, strategy, ok := domainStrategy(m[1], m[2])
	if !ok {
		return nil, false
	}
	return CurrentStatus{
		Domain:   domain,
		Strategy: strategy,
		Protocol: protocol(m[3]),
		State:    LearningState(m[4]),
	}, true
}

func parseRst(line string) (Event, bool) {
	m := reRst.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	return RstInjectionDetected{InBytes: n}, true
}

func parseNew(line string) (Event, bool) {
	m := reNew.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	domain := model.NormalizeDomain(m[1])
	if domain == "" {
		return nil, false
	}
	return NewDomainStarted{Domain: domain}, true
}

func domainStrategy(rawDomain, rawStrategy string) (string, int, bool) {
	domain := model.NormalizeDomain(rawDomain)
	if domain == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(rawStrategy)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return domain, n, true
}

// protocol maps a captured tag to a Protocol; a missing tag means TLS.
func protocol(tag string) model.Protocol {
	if tag == "" {
		return model.ProtocolTLS
	}
	p, err := model.ParseProtocol(tag)
	if err != nil {
		return model.ProtocolTLS
	}
	return p
}
