// Package policy decides where a just-rated card is reinserted in the
// review queue.
//
// Offsets are distances from the queue head. They are heuristics on a
// FIFO-like queue, not due dates: harder cards come back sooner, easier cards
// are deferred further the more often they have been rated easy.
package policy

import (
	"fmt"
	"math"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// Policy computes reinsertion offsets and the history recorded for a rating.
// Implementations must be pure: they never mutate history.
type Policy interface {
	// Offset returns the queue index at which the card is reinserted, given
	// the queue length after the card was removed and its history before
	// this rating.
	Offset(r domain.Rating, queueLen int, history []domain.Rating) int
	// Record returns the history to store after rating r.
	Record(r domain.Rating, history []domain.Rating) []domain.Rating
}

// EasyRule selects how prior easy ratings push an easy card back.
type EasyRule int

const (
	// EasyExponential adds 15·2^priorEasy to a base of 15.
	EasyExponential EasyRule = iota
	// EasyLinear adds 10·priorEasy to a base of 30.
	EasyLinear
)

// NormalRule selects how a normal rating interacts with history.
type NormalRule int

const (
	// NormalRebalance nudges the offset by whichever of hard or easy
	// dominates the history, within [5, 30].
	NormalRebalance NormalRule = iota
	// NormalForgetEasy keeps the base offset and drops the oldest easy
	// rating from the recorded history.
	NormalForgetEasy
)

const (
	hardOffset   = 5
	normalOffset = 15
	normalNudge  = 5
	normalMin    = 5
	normalMax    = 30

	easyOffset       = 15
	easyBonus        = 15
	linearEasyOffset = 30
	linearEasyBonus  = 10
)

// Reinsertion is the queue reinsertion policy.
type Reinsertion struct {
	Easy   EasyRule
	Normal NormalRule
}

var _ Policy = Reinsertion{}

// Default returns the exponential easy bonus with normal rebalancing.
func Default() Reinsertion {
	return Reinsertion{Easy: EasyExponential, Normal: NormalRebalance}
}

// Offset implements Policy. The result is in [1, queueLen] whenever
// queueLen >= 1, and 0 for an empty queue.
func (p Reinsertion) Offset(r domain.Rating, queueLen int, history []domain.Rating) int {
	if queueLen <= 0 {
		return 0
	}

	var offset float64
	switch r {
	case domain.Trivial:
		return queueLen
	case domain.Easy:
		prior := float64(domain.CountRating(history, domain.Easy))
		if p.Easy == EasyLinear {
			offset = linearEasyOffset + linearEasyBonus*prior
		} else {
			offset = easyOffset + easyBonus*math.Pow(2, prior)
		}
	case domain.Hard:
		offset = hardOffset
	case domain.Normal:
		offset = normalOffset
		if p.Normal == NormalRebalance {
			offset = rebalance(offset, history)
		}
	default:
		offset = normalOffset
	}

	return clamp(offset, queueLen)
}

// Record implements Policy. The returned slice never aliases history.
func (p Reinsertion) Record(r domain.Rating, history []domain.Rating) []domain.Rating {
	out := make([]domain.Rating, 0, len(history)+1)
	out = append(out, history...)
	if r == domain.Normal && p.Normal == NormalForgetEasy {
		for i, h := range out {
			if h == domain.Easy {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
	}
	return append(out, r)
}

func rebalance(offset float64, history []domain.Rating) float64 {
	easy := domain.CountRating(history, domain.Easy)
	hard := domain.CountRating(history, domain.Hard)
	switch {
	case easy > hard:
		offset += normalNudge
	case hard > easy:
		offset -= normalNudge
	}
	return math.Min(math.Max(offset, normalMin), normalMax)
}

// clamp floors offset into [1, queueLen]. Large offsets are compared as
// floats so exponential bonuses cannot overflow int.
func clamp(offset float64, queueLen int) int {
	offset = math.Floor(offset)
	if math.IsNaN(offset) || offset < 1 {
		offset = 1
	}
	if offset >= float64(queueLen) {
		return queueLen
	}
	return int(offset)
}

// ParseEasyRule maps a configuration value to an EasyRule.
func ParseEasyRule(s string) (EasyRule, error) {
	switch s {
	case "", "exponential":
		return EasyExponential, nil
	case "linear":
		return EasyLinear, nil
	}
	return 0, fmt.Errorf("unknown easy rule %q", s)
}

// ParseNormalRule maps a configuration value to a NormalRule.
func ParseNormalRule(s string) (NormalRule, error) {
	switch s {
	case "", "rebalance":
		return NormalRebalance, nil
	case "forget-easy":
		return NormalForgetEasy, nil
	}
	return 0, fmt.Errorf("unknown normal rule %q", s)
}
