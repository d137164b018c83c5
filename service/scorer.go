package service

import (
	"math"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// Scorer turns a finding into a risk score on a fixed 0-100 scale. The
// computation is a pure function of rule weight and jurisdiction multiplier;
// inputs outside the configured bounds produce a ScoringRangeError, which
// aborts the evaluation run rather than persisting a nonsensical score.
type Scorer struct {
	cfg *config.ScoringConfig
}

func NewScorer(cfg *config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score fills in the finding's score and risk level from the rule it was
// raised against
func (s *Scorer) Score(finding *model.Finding, rule *model.Rule) error {
	if rule.Weight < 0 || rule.Weight > s.cfg.MaxWeight {
		return &model.ScoringRangeError{
			Field: "weight",
			Value: rule.Weight,
			Min:   0,
			Max:   s.cfg.MaxWeight,
		}
	}

	// Jurisdictions without a configured multiplier weigh in at 1.0
	multiplier, ok := s.cfg.Multipliers[rule.Jurisdiction]
	if !ok {
		multiplier = 1.0
	}
	if multiplier < s.cfg.MinMultiplier || multiplier > s.cfg.MaxMultiplier {
		return &model.ScoringRangeError{
			Field: "multiplier",
			Value: multiplier,
			Min:   s.cfg.MinMultiplier,
			Max:   s.cfg.MaxMultiplier,
		}
	}

	// Normalize so the heaviest rule with the strongest multiplier lands
	// exactly on 100
	scale := 100 / (s.cfg.MaxWeight * s.cfg.MaxMultiplier)
	finding.Score = math.Round(rule.Weight*multiplier*scale*100) / 100
	finding.Level = s.Level(finding.Score)
	return nil
}

// Level maps a score to its risk level
func (s *Scorer) Level(score float64) string {
	switch {
	case score >= s.cfg.HighThreshold:
		return model.LevelHigh
	case score >= s.cfg.MediumThreshold:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}
