package verdict

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Well-known rule set names for KeywordSource. Phrase sets match by
// substring against the lower-cased message; word sets match slugified
// tokens.
const (
	SetSpamPhrases        = "spam-phrases"
	SetScamPhrases        = "scam-phrases"
	SetToxicWords         = "toxic-words"
	SetAllowedLinkDomains = "allowed-link-domains"
)

var inviteRegex = regexp.MustCompile(`(?:t\.me|telegram\.me)/\+?[a-zA-Z0-9_/]+`)

// KeywordSource is a deterministic rule-based classifier: phrase lists,
// token lists, link heuristics, and a repeated-character check. It never
// returns an error and produces the same verdict for the same input, so
// it is safe to sit behind a shared cache.
type KeywordSource struct {
	mu      sync.RWMutex
	phrases map[string][]string
	words   map[string]map[string]bool

	// LinkTrustLevel exempts members at or above this level from link
	// checks. The rest of the rules apply to everyone.
	LinkTrustLevel int
}

// NewKeywordSource returns a source preloaded with a small default set of
// spam and scam phrases. Toxic word lists are operator-supplied via
// LoadFromFileJSON; none ship by default.
func NewKeywordSource() *KeywordSource {
	return &KeywordSource{
		phrases: map[string][]string{
			SetSpamPhrases: {
				"buy now", "click here", "free money", "guaranteed income",
				"make money fast", "limited time offer", "act now",
			},
			SetScamPhrases: {
				"wallet connect", "verify your wallet", "airdrop claim",
				"double your", "send crypto", "withdraw now",
			},
		},
		words: map[string]map[string]bool{
			SetToxicWords:         {},
			SetAllowedLinkDomains: {},
		},
		LinkTrustLevel: 5,
	}
}

// AddWords inserts values in to a token set, slugifying each entry.
func (ks *KeywordSource) AddWords(set string, vals ...string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	m, ok := ks.words[set]
	if !ok {
		m = make(map[string]bool)
		ks.words[set] = m
	}
	for _, v := range vals {
		m[Slugify(v)] = true
	}
}

// LoadFromFileJSON merges rule sets from a JSON file mapping set names to
// string lists. Known phrase sets replace the built-in defaults; word
// sets merge. Unknown set names are treated as word sets.
func (ks *KeywordSource) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var rules map[string][]string
	if err := json.Unmarshal(raw, &rules); err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	for name, l := range rules {
		switch name {
		case SetSpamPhrases, SetScamPhrases:
			out := make([]string, 0, len(l))
			for _, v := range l {
				out = append(out, strings.ToLower(v))
			}
			ks.phrases[name] = out
		case SetAllowedLinkDomains:
			m := make(map[string]bool, len(l))
			for _, v := range l {
				m[strings.ToLower(v)] = true
			}
			ks.words[name] = m
		default:
			if name != SetToxicWords {
				slog.Warn("loading unknown keyword set as word set", "set", name)
			}
			m := ks.words[name]
			if m == nil {
				m = make(map[string]bool, len(l))
				ks.words[name] = m
			}
			for _, v := range l {
				m[Slugify(v)] = true
			}
		}
	}
	return nil
}

// Classify runs the rule chain in fixed order: spam phrases, scam
// phrases, links, repeated characters, toxic words. The first rule to
// fire decides the verdict.
func (ks *KeywordSource) Classify(ctx context.Context, msg *Message) (*Verdict, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	lower := strings.ToLower(msg.Text)

	for _, phrase := range ks.phrases[SetSpamPhrases] {
		if strings.Contains(lower, phrase) {
			return &Verdict{IsViolation: true, Category: CategorySpam, Confidence: 0.90}, nil
		}
	}

	for _, phrase := range ks.phrases[SetScamPhrases] {
		if strings.Contains(lower, phrase) {
			return &Verdict{IsViolation: true, Category: CategorySpam, Confidence: 0.98}, nil
		}
	}

	if v := ks.checkLinks(lower, msg.MemberLevel); v != nil {
		return v, nil
	}

	if hasCharRun(lower, 6) {
		return &Verdict{IsViolation: true, Category: CategorySpam, Confidence: 0.65}, nil
	}

	toxic := ks.words[SetToxicWords]
	if len(toxic) > 0 {
		tokens := TokenizeText(msg.Text)
		tokens = append(tokens, TokenizeTextSkippingCensorChars(msg.Text)...)
		for _, tok := range tokens {
			if toxic[Slugify(tok)] {
				return &Verdict{IsViolation: true, Category: CategoryToxicity, Confidence: 0.95}, nil
			}
		}
	}

	return &Verdict{IsViolation: false, Category: CategoryBenign, Confidence: 0.99}, nil
}

// checkLinks flags messages containing URLs or chat invite links, unless
// every link hits the domain allowlist or the member is trusted. Caller
// holds the read lock.
func (ks *KeywordSource) checkLinks(lower string, memberLevel int) *Verdict {
	urls := ExtractTextURLs(lower)
	if len(urls) == 0 {
		return nil
	}

	allowed := ks.words[SetAllowedLinkDomains]
	flagged := false
	for _, u := range urls {
		ok := false
		for d := range allowed {
			if strings.Contains(u, d) {
				ok = true
				break
			}
		}
		if !ok {
			flagged = true
			break
		}
	}
	if !flagged || memberLevel >= ks.LinkTrustLevel {
		return nil
	}

	conf := 0.90
	if inviteRegex.MatchString(lower) {
		conf = 0.95
	}
	return &Verdict{IsViolation: true, Category: CategoryLinkAbuse, Confidence: conf}
}

// hasCharRun reports whether s contains n or more consecutive identical
// runes. RE2 has no backreferences, so this replaces a `(.)\1{5,}`
// style pattern.
func hasCharRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
