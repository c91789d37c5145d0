// Package verdict defines message classification: the Verdict type, the
// Source interface that classifiers implement, and the bundled sources
// (keyword rules, remote HTTP classifier, caching wrapper).
package verdict

import (
	"context"
	"fmt"
)

// Category is the class of violation a verdict asserts.
type Category string

const (
	CategorySpam      Category = "spam"
	CategoryToxicity  Category = "toxicity"
	CategoryLinkAbuse Category = "link-abuse"
	CategoryBenign    Category = "benign"
)

// Message is the unit of text handed to a classifier. MemberLevel lets
// rule-based sources exempt established members (eg, from link checks)
// while staying a pure function of their inputs.
type Message struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	MessageID   string `json:"message_id"`
	Text        string `json:"text"`
	MemberLevel int    `json:"member_level"`
}

// Verdict is a classifier's judgement of a single message.
type Verdict struct {
	IsViolation bool     `json:"is_violation"`
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`
}

// Validate rejects verdicts that violate the output contract: confidence
// outside [0, 1], an unknown category, or a violation flag inconsistent
// with the category.
func (v *Verdict) Validate() error {
	if v.Confidence < 0.0 || v.Confidence > 1.0 {
		return fmt.Errorf("verdict confidence out of range: %f", v.Confidence)
	}
	switch v.Category {
	case CategorySpam, CategoryToxicity, CategoryLinkAbuse:
		if !v.IsViolation {
			return fmt.Errorf("verdict category %s requires violation flag", v.Category)
		}
	case CategoryBenign:
		if v.IsViolation {
			return fmt.Errorf("benign verdict can not be a violation")
		}
	default:
		return fmt.Errorf("unknown verdict category: %s", v.Category)
	}
	return nil
}

// Source classifies messages. Implementations must be safe for
// concurrent use. A nil verdict is never valid: sources return either a
// verdict (benign included) or an error.
type Source interface {
	Classify(ctx context.Context, msg *Message) (*Verdict, error)
}

// SourceFunc adapts a bare function to the Source interface.
type SourceFunc func(ctx context.Context, msg *Message) (*Verdict, error)

func (f SourceFunc) Classify(ctx context.Context, msg *Message) (*Verdict, error) {
	return f(ctx, msg)
}
