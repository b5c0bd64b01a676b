package yahoo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodForDays(t *testing.T) {
	assert.Equal(t, "1mo", periodForDays(20))
	assert.Equal(t, "3mo", periodForDays(90))
	assert.Equal(t, "6mo", periodForDays(120))
	assert.Equal(t, "1y", periodForDays(250))
	assert.Equal(t, "2y", periodForDays(500))
}

func TestRecommendationScore(t *testing.T) {
	assert.Equal(t, 1.0, recommendationScore("strongBuy"))
	assert.Equal(t, 0.8, recommendationScore("BUY"))
	assert.Equal(t, 0.5, recommendationScore("hold"))
	assert.Equal(t, 0.5, recommendationScore(""))
	assert.Equal(t, 0.2, recommendationScore("sell"))
	assert.Equal(t, 0.0, recommendationScore("strongSell"))
}

func TestAwaitReturnsResult(t *testing.T) {
	got, err := await(context.Background(), func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestAwaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	_, err := await(ctx, func() (int, error) {
		<-done
		return 0, nil
	})
	close(done)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
