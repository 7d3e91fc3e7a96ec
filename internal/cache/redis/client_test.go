package redis

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyNamespacing(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	require.Equal(t, "market:lock:order:7", Wrap(rdb, "").Key("lock", "order:7"))
	require.Equal(t, "staging:bus:events", Wrap(rdb, "staging").Key("bus", "events"))
}

func TestIsPattern(t *testing.T) {
	testCases := []struct {
		channel  string
		expected bool
	}{
		{"events", false},
		{"events.*", true},
		{"order.?", true},
		{"order.[12]", true},
	}
	for _, tc := range testCases {
		t.Run(tc.channel, func(t *testing.T) {
			require.Equal(t, tc.expected, isPattern(tc.channel))
		})
	}
}
