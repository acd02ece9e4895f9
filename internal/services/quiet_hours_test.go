package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	start, err := ParseClock("22:00")
	require.NoError(t, err)
	end, err := ParseClock("07:00")
	require.NoError(t, err)

	require.True(t, InQuietHours(start, end, 1380), "23:00 is quiet")
	require.False(t, InQuietHours(start, end, 720), "12:00 is not quiet")
	require.True(t, InQuietHours(start, end, 6*60+59))
	require.False(t, InQuietHours(start, end, 7*60+1))
	require.True(t, InQuietHours(start, end, 22*60))
	require.True(t, InQuietHours(start, end, 7*60), "07:00 closes the window and is still quiet")
	require.False(t, InQuietHours(start, end, 21*60+59))
}

func TestInQuietHoursSameDayWindow(t *testing.T) {
	require.True(t, InQuietHours(13*60, 14*60, 13*60+30))
	require.True(t, InQuietHours(13*60, 14*60, 14*60), "end minute is inclusive")
	require.False(t, InQuietHours(13*60, 14*60, 14*60+1))
	require.False(t, InQuietHours(13*60, 14*60, 12*60))
	require.True(t, InQuietHours(9*60, 17*60, 17*60))
}

func TestInQuietHoursSingleMinuteWindow(t *testing.T) {
	require.True(t, InQuietHours(720, 720, 720))
	require.False(t, InQuietHours(720, 720, 721))
	require.False(t, InQuietHours(720, 720, 719))
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("06:59")
	require.NoError(t, err)
	require.Equal(t, 419, minutes)

	for _, bad := range []string{"", "7:00", "24:00", "ab:cd"} {
		_, err := ParseClock(bad)
		require.Error(t, err, bad)
	}
}
