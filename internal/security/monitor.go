package security

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/logging"
)

// Submission is what the monitor sees of one form submit.
type Submission struct {
	Key            string
	Fields         map[string]string
	OptionalFields []string
	Honeypot       string
	StartedAt      time.Time
	SubmittedAt    time.Time
	Filenames      []string
	UserAgent      string
}

// Assessment is the monitor's verdict. Reasons are log-only.
type Assessment struct {
	Score      int
	Reasons    []string
	Suspicious bool
	Block      bool
}

const (
	SuspiciousThreshold = 40
	BlockThreshold      = 70

	historyWindow   = 5 * time.Minute
	historyCap      = 20
	minFillDuration = 3 * time.Second
	maxFiles        = 20
)

var riskyExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {}, ".pif": {},
	".vbs": {}, ".js": {}, ".jar": {}, ".msi": {}, ".ps1": {}, ".sh": {},
	".php": {}, ".dll": {}, ".hta": {},
}

var automationAgents = []string{
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"httpclient", "headless", "phantomjs", "selenium", "puppeteer", "bot", "spider", "crawler",
}

// Monitor scores submissions for abuse. History is kept per key in memory.
type Monitor struct {
	mu      sync.Mutex
	history map[string][]time.Time
	swept   time.Time
	now     func() time.Time
	log     logging.Logger
}

func NewMonitor(log logging.Logger) *Monitor {
	return &Monitor{
		history: make(map[string][]time.Time),
		now:     time.Now,
		log:     log.With("module", "monitor"),
	}
}

// WithClock replaces the time source. Tests only.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Assess scores s and records it in the key's history.
func (m *Monitor) Assess(ctx context.Context, s Submission) Assessment {
	var a Assessment
	add := func(points int, reason string) {
		a.Score += points
		a.Reasons = append(a.Reasons, reason)
	}

	at := s.SubmittedAt
	if at.IsZero() {
		at = m.now()
	}
	past := m.record(NormalizeKey(s.Key), at)

	recent := 0
	for _, t := range past {
		if at.Sub(t) <= historyWindow {
			recent++
		}
	}
	switch {
	case recent >= 6:
		add(40, fmt.Sprintf("high submission rate: %d in 5m", recent))
	case recent >= 3:
		add(20, fmt.Sprintf("elevated submission rate: %d in 5m", recent))
	}

	if irregular, ok := regularIntervals(append(past, at)); ok && irregular < time.Second {
		add(20, "regular submission interval")
	}

	for _, r := range ScanFields(s.Fields) {
		add(30, fmt.Sprintf("pattern %s in %s", r.Reason, r.Field))
	}

	if len(s.OptionalFields) > 0 && allFilled(s.Fields, s.OptionalFields) {
		add(10, "all optional fields filled")
	}
	if strings.TrimSpace(s.Honeypot) != "" {
		add(50, "honeypot filled")
	}
	if !s.StartedAt.IsZero() && at.Sub(s.StartedAt) < minFillDuration {
		add(25, "form completed too quickly")
	}
	if isAutomationAgent(s.UserAgent) {
		add(15, "missing or automated user agent")
	}

	for _, reason := range fileRedFlags(s.Filenames) {
		add(20, reason)
	}

	a.Suspicious = a.Score >= SuspiciousThreshold
	a.Block = a.Score >= BlockThreshold
	if a.Suspicious {
		m.log.Warn(ctx, "suspicious submission",
			"key", Fingerprint(s.Key), "score", a.Score, "reasons", a.Reasons, "block", a.Block)
	}
	return a
}

// record appends at to the key's history and returns the history before it.
func (m *Monitor) record(key string, at time.Time) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(at)

	prev := m.history[key]
	keep := prev[:0:0]
	for _, t := range prev {
		if at.Sub(t) <= historyWindow {
			keep = append(keep, t)
		}
	}
	out := append([]time.Time(nil), keep...)

	keep = append(keep, at)
	if len(keep) > historyCap {
		keep = keep[len(keep)-historyCap:]
	}
	m.history[key] = keep
	return out
}

// sweep drops keys with no submission inside the window, at most once per
// window. Callers hold m.mu.
func (m *Monitor) sweep(at time.Time) {
	if at.Sub(m.swept) < historyWindow {
		return
	}
	m.swept = at
	for k, ts := range m.history {
		if len(ts) == 0 || at.Sub(ts[len(ts)-1]) > historyWindow {
			delete(m.history, k)
		}
	}
}

// regularIntervals returns the standard deviation of the gaps between ts.
// ok is false when there are fewer than three gaps.
func regularIntervals(ts []time.Time) (time.Duration, bool) {
	if len(ts) < 4 {
		return 0, false
	}
	gaps := make([]float64, 0, len(ts)-1)
	var sum float64
	for i := 1; i < len(ts); i++ {
		g := ts[i].Sub(ts[i-1]).Seconds()
		gaps = append(gaps, g)
		sum += g
	}
	mean := sum / float64(len(gaps))
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	return time.Duration(math.Sqrt(variance) * float64(time.Second)), true
}

func allFilled(fields map[string]string, keys []string) bool {
	for _, k := range keys {
		if strings.TrimSpace(fields[k]) == "" {
			return false
		}
	}
	return true
}

func isAutomationAgent(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, a := range automationAgents {
		if strings.Contains(ua, a) {
			return true
		}
	}
	return false
}

func fileRedFlags(names []string) []string {
	var flags []string
	risky, double := false, false
	for _, n := range names {
		if IsExecutableName(path.Base(n)) {
			risky = true
		}
		if HasDoubleExtension(n) {
			double = true
		}
	}
	if risky {
		flags = append(flags, "executable or script attachment")
	}
	if double {
		flags = append(flags, "double extension attachment")
	}
	if len(names) > maxFiles {
		flags = append(flags, fmt.Sprintf("too many attachments: %d", len(names)))
	}
	return flags
}
