package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker() *Tracker {
	logger, _ := zap.NewDevelopment()
	return New(logger)
}

func TestApply_GrowsMonotonically(t *testing.T) {
	tr := newTestTracker()
	base := time.Second

	d1 := tr.Apply("https://a.example.com", base, false)
	d2 := tr.Apply("https://a.example.com", base, false)
	d3 := tr.Apply("https://a.example.com", base, false)

	require.Equal(t, time.Second, d1)
	require.Equal(t, 1500*time.Millisecond, d2)
	require.Equal(t, 2250*time.Millisecond, d3)
	require.Equal(t, 3, tr.Strikes("https://a.example.com"))
}

func TestApply_RateLimitedDoublesFaster(t *testing.T) {
	tr := newTestTracker()
	base := time.Second

	d1 := tr.Apply("https://b.example.com", base, true)
	d2 := tr.Apply("https://b.example.com", base, true)
	d3 := tr.Apply("https://b.example.com", base, true)

	require.Equal(t, time.Second, d1)
	require.Equal(t, 2*time.Second, d2)
	require.Equal(t, 4*time.Second, d3)
}

func TestApply_CappedAtMaxDelay(t *testing.T) {
	tr := newTestTracker()
	base := 4 * time.Minute

	require.Equal(t, 4*time.Minute, tr.Apply("https://c.example.com", base, false))
	require.Equal(t, MaxDelay, tr.Apply("https://c.example.com", base, false))
	require.Equal(t, MaxDelay, tr.Apply("https://c.example.com", base, true))
}

func TestAvailable(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	require.True(t, tr.Available("https://unknown.example.com", now))

	delay := tr.Apply("https://d.example.com", 10*time.Second, false)
	require.False(t, tr.Available("https://d.example.com", now))
	require.True(t, tr.Available("https://d.example.com", now.Add(delay+time.Second)))
}

func TestStrikes_SurviveExpiredWindow(t *testing.T) {
	tr := newTestTracker()
	url := "https://e.example.com"

	tr.Apply(url, time.Millisecond, false)
	tr.Apply(url, time.Millisecond, false)
	// Window long gone, history intact.
	require.True(t, tr.Available(url, time.Now().Add(time.Hour)))
	require.Equal(t, 2, tr.Strikes(url))

	d3 := tr.Apply(url, time.Second, false)
	require.Equal(t, 2250*time.Millisecond, d3)
}

func TestApply_WindowNeverMovesBackwards(t *testing.T) {
	tr := newTestTracker()
	url := "https://f.example.com"

	tr.Apply(url, time.Hour, false)
	tr.Apply(url, time.Millisecond, false)

	// The short second strike must not shrink the hour-long window.
	require.False(t, tr.Available(url, time.Now().Add(30*time.Minute)))
}
