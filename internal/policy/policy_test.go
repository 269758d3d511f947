package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolqueue/internal/domain"
)

func repeat(r domain.Rating, n int) []domain.Rating {
	out := make([]domain.Rating, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func TestOffsetAlwaysWithinQueue(t *testing.T) {
	histories := [][]domain.Rating{
		nil,
		{domain.Easy},
		repeat(domain.Easy, 100),
		repeat(domain.Hard, 7),
		{domain.Hard, domain.Easy, domain.Normal, domain.Trivial},
	}
	policies := []Reinsertion{
		Default(),
		{Easy: EasyLinear, Normal: NormalForgetEasy},
	}

	for _, p := range policies {
		for _, r := range domain.Ratings {
			for n := 1; n <= 200; n++ {
				for _, h := range histories {
					got := p.Offset(r, n, h)
					if got < 1 || got > n {
						t.Fatalf("Offset(%s, %d, %v) = %d, want within [1, %d]", r, n, h, got, n)
					}
				}
			}
		}
	}
}

func TestOffsetEmptyQueue(t *testing.T) {
	for _, r := range domain.Ratings {
		assert.Equal(t, 0, Default().Offset(r, 0, nil), "rating %s", r)
	}
}

func TestTrivialGoesToTail(t *testing.T) {
	for _, n := range []int{1, 2, 15, 500} {
		assert.Equal(t, n, Default().Offset(domain.Trivial, n, repeat(domain.Hard, 3)))
	}
}

func TestOffsetBaseValues(t *testing.T) {
	p := Default()
	tests := []struct {
		name    string
		rating  domain.Rating
		history []domain.Rating
		want    int
	}{
		{"hard", domain.Hard, nil, 5},
		{"hard ignores history", domain.Hard, repeat(domain.Easy, 4), 5},
		{"normal fresh", domain.Normal, nil, 15},
		{"normal after easy", domain.Normal, []domain.Rating{domain.Easy}, 20},
		{"normal after hard", domain.Normal, []domain.Rating{domain.Hard}, 10},
		{"normal balanced", domain.Normal, []domain.Rating{domain.Hard, domain.Easy}, 15},
		{"easy first", domain.Easy, nil, 30},
		{"easy second", domain.Easy, []domain.Rating{domain.Easy}, 45},
		{"easy third", domain.Easy, []domain.Rating{domain.Easy, domain.Hard, domain.Easy}, 75},
		{"unknown falls back to normal", domain.Rating("bogus"), nil, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Offset(tt.rating, 1000, tt.history))
		})
	}
}

func TestLinearEasy(t *testing.T) {
	p := Reinsertion{Easy: EasyLinear}
	assert.Equal(t, 30, p.Offset(domain.Easy, 1000, nil))
	assert.Equal(t, 40, p.Offset(domain.Easy, 1000, []domain.Rating{domain.Easy}))
	assert.Equal(t, 60, p.Offset(domain.Easy, 1000, repeat(domain.Easy, 3)))
}

func TestNormalRebalanceStaysInBand(t *testing.T) {
	p := Default()
	for _, h := range [][]domain.Rating{repeat(domain.Hard, 50), repeat(domain.Easy, 50)} {
		got := p.Offset(domain.Normal, 1000, h)
		assert.GreaterOrEqual(t, got, 5)
		assert.LessOrEqual(t, got, 30)
	}
}

func TestRepeatedEasyIsMonotonic(t *testing.T) {
	for _, p := range []Reinsertion{Default(), {Easy: EasyLinear}} {
		const n = 1000
		var history []domain.Rating
		prev := 0
		for i := 0; i < 100; i++ {
			got := p.Offset(domain.Easy, n, history)
			require.GreaterOrEqual(t, got, prev, "easy offset decreased after %d easy ratings", i)
			prev = got
			history = p.Record(domain.Easy, history)
		}
		assert.Equal(t, n, prev, "easy offset should eventually reach the queue length")
	}
}

func TestRecord(t *testing.T) {
	t.Run("appends without mutating input", func(t *testing.T) {
		history := make([]domain.Rating, 1, 4)
		history[0] = domain.Hard
		got := Default().Record(domain.Easy, history)
		assert.Equal(t, []domain.Rating{domain.Hard, domain.Easy}, got)
		assert.Equal(t, []domain.Rating{domain.Hard}, history)
		got[0] = domain.Trivial
		assert.Equal(t, domain.Hard, history[0])
	})

	t.Run("rebalance keeps easy", func(t *testing.T) {
		history := []domain.Rating{domain.Easy, domain.Hard}
		got := Default().Record(domain.Normal, history)
		assert.Equal(t, []domain.Rating{domain.Easy, domain.Hard, domain.Normal}, got)
	})

	t.Run("forget easy drops the oldest easy", func(t *testing.T) {
		p := Reinsertion{Normal: NormalForgetEasy}
		history := []domain.Rating{domain.Hard, domain.Easy, domain.Easy}
		got := p.Record(domain.Normal, history)
		assert.Equal(t, []domain.Rating{domain.Hard, domain.Easy, domain.Normal}, got)
		assert.Equal(t, []domain.Rating{domain.Hard, domain.Easy, domain.Easy}, history)
	})

	t.Run("forget easy without easy", func(t *testing.T) {
		p := Reinsertion{Normal: NormalForgetEasy}
		got := p.Record(domain.Normal, []domain.Rating{domain.Hard})
		assert.Equal(t, []domain.Rating{domain.Hard, domain.Normal}, got)
	})
}

func TestParseRules(t *testing.T) {
	e, err := ParseEasyRule("linear")
	require.NoError(t, err)
	assert.Equal(t, EasyLinear, e)
	e, err = ParseEasyRule("")
	require.NoError(t, err)
	assert.Equal(t, EasyExponential, e)
	_, err = ParseEasyRule("quadratic")
	assert.Error(t, err)

	n, err := ParseNormalRule("forget-easy")
	require.NoError(t, err)
	assert.Equal(t, NormalForgetEasy, n)
	_, err = ParseNormalRule("nope")
	assert.Error(t, err)
}
