package tradingdays

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestMIC(t *testing.T) {
	t.Parallel()

	require.Equal(t, "xnys", MIC("AAPL"))
	require.Equal(t, "xlon", MIC("VOD.L"))
	require.Equal(t, "xnys", MIC("BRK.B"))
}

func TestNYSE_NewYearHoliday(t *testing.T) {
	t.Parallel()

	cal := For(DefaultMIC)
	require.False(t, cal.IsBusinessDay(date(2024, 1, 1)))
	require.False(t, cal.HasBusinessDay(date(2024, 1, 1), date(2024, 1, 1)))
	require.False(t, cal.IsBusinessDay(date(2024, 1, 6)))

	days := cal.BusinessDays(date(2024, 1, 1), date(2024, 1, 5))
	require.Len(t, days, 4)
	require.Equal(t, date(2024, 1, 2), days[0])
}

func TestFallbackWeekdays(t *testing.T) {
	t.Parallel()

	c := &Calendar{loc: time.UTC}
	require.True(t, c.IsBusinessDay(date(2024, 1, 1)))
	require.False(t, c.IsBusinessDay(date(2024, 1, 7)))
}
