// Package recommendation maps a fraud probability to a risk band and an
// action. Risk bands split at 30/60 and actions at 30/70; the two scales are
// independent and every band includes its lower bound.
package recommendation

import "github.com/akylbek/payment-system/fraud-detector/internal/models"

const (
	MediumRiskFrom = 30.0
	HighRiskFrom   = 60.0

	ReviewFrom = 30.0
	BlockFrom  = 70.0
)

// Result is the recommendation for one probability.
type Result struct {
	RiskLevel models.RiskLevel
	Action    models.Action
	Message   string
}

// RiskLevel returns the band for a probability in [0,100].
func RiskLevel(p float64) models.RiskLevel {
	switch {
	case p >= HighRiskFrom:
		return models.RiskHigh
	case p >= MediumRiskFrom:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Action returns the recommended action for a probability in [0,100].
func Action(p float64) models.Action {
	switch {
	case p >= BlockFrom:
		return models.ActionBlock
	case p >= ReviewFrom:
		return models.ActionReview
	default:
		return models.ActionAllow
	}
}

func Message(a models.Action) string {
	switch a {
	case models.ActionBlock:
		return "Transaction flagged as fraudulent. Immediate review required."
	case models.ActionReview:
		return "Transaction shows elevated risk. Manual review recommended before processing."
	default:
		return "Transaction appears legitimate. Safe to proceed."
	}
}

func Recommend(p float64) Result {
	action := Action(p)
	return Result{
		RiskLevel: RiskLevel(p),
		Action:    action,
		Message:   Message(action),
	}
}
