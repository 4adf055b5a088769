package scoring

import (
	"github.com/cnv-acmg-classifier/internal/domain"
)

// Resolution is the effective score and justification of one section.
type Resolution struct {
	Section       int     `json:"section"`
	Option        string  `json:"option,omitempty"`
	Score         float64 `json:"score"`
	Reason        string  `json:"reason"`
	DefaultOption string  `json:"default_option,omitempty"`
	Overridden    bool    `json:"overridden"`
}

// Resolve computes a section's score and reason from the backend's default
// evaluation and the user's pick.
//
// Without a pick, or when the pick is the backend's own choice, the backend
// score and reason are authoritative and returned verbatim. A different pick is
// scored from its catalog entry: the suggested points when present, otherwise
// half the min/max span. options, when non-empty, restricts the picks that can
// be scored; a pick outside it contributes nothing.
func Resolve(section int, options []domain.EvidenceOption, serverDefault *domain.SectionResult, userPick *domain.EvidenceOption) Resolution {
	res := Resolution{Section: section, Reason: domain.NoReason}
	if serverDefault != nil {
		res.DefaultOption = serverDefault.Option
	}

	if userPick == nil || (serverDefault != nil && userPick.Label == serverDefault.Option) {
		if serverDefault == nil {
			return res
		}
		res.Option = serverDefault.Option
		res.Score = serverDefault.Score
		res.Reason = serverDefault.Reason
		return res
	}

	res.Option = userPick.Label
	res.Overridden = serverDefault != nil

	if len(options) > 0 && !containsOption(options, userPick.Label) {
		return res
	}

	res.Score = optionPoints(userPick)
	if userPick.EvidenceText != "" {
		res.Reason = userPick.EvidenceText
	}
	return res
}

// optionPoints is the score a manually chosen option contributes.
func optionPoints(opt *domain.EvidenceOption) float64 {
	if opt.SuggestedPoints != nil {
		return *opt.SuggestedPoints
	}
	return (opt.MaxScore - opt.MinScore) / 2
}

func containsOption(options []domain.EvidenceOption, label string) bool {
	for _, o := range options {
		if o.Label == label {
			return true
		}
	}
	return false
}
