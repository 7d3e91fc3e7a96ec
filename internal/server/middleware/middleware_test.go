package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/crypto"
)

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		caller, ok := Caller(r.Context())
		if !ok {
			w.Write([]byte("anonymous|" + string(body)))
			return
		}
		w.Write([]byte(caller.Hex() + "|" + string(body)))
	})
}

func TestAuth(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.NewSigner(key)
	now := time.Unix(1_767_225_600, 0)
	auth := Auth(AuthConfig{Now: func() time.Time { return now }})(echoCaller())

	signed := func(ts time.Time, body string, mutate func(*http.Request)) *http.Request {
		stamp := strconv.FormatInt(ts.Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/api/orders/7/bids?x=1", strings.NewReader(body))
		sig, err := signer.SignText(crypto.RequestMessage(stamp, http.MethodPost, "/api/orders/7/bids?x=1", []byte(body)))
		require.NoError(t, err)
		req.Header.Set(HeaderAddress, signer.Address().Hex())
		req.Header.Set(HeaderTimestamp, stamp)
		req.Header.Set(HeaderSignature, hexutil.Encode(sig))
		if mutate != nil {
			mutate(req)
		}
		return req
	}

	testCases := []struct {
		name         string
		req          *http.Request
		expectedCode int
		expectedBody string
	}{
		{
			name:         "anonymous",
			req:          httptest.NewRequest(http.MethodGet, "/api/orders", nil),
			expectedCode: http.StatusOK,
			expectedBody: "anonymous|",
		},
		{
			name:         "valid signature keeps body readable",
			req:          signed(now, `{"amount":"26"}`, nil),
			expectedCode: http.StatusOK,
			expectedBody: signer.Address().Hex() + `|{"amount":"26"}`,
		},
		{
			name:         "stale timestamp",
			req:          signed(now.Add(-10*time.Minute), `{}`, nil),
			expectedCode: http.StatusUnauthorized,
		},
		{
			name: "address mismatch",
			req: signed(now, `{}`, func(r *http.Request) {
				r.Header.Set(HeaderAddress, common.HexToAddress("0x01").Hex())
			}),
			expectedCode: http.StatusUnauthorized,
		},
		{
			name: "missing signature",
			req: signed(now, `{}`, func(r *http.Request) {
				r.Header.Del(HeaderSignature)
			}),
			expectedCode: http.StatusUnauthorized,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			auth.ServeHTTP(rec, tc.req)
			require.Equal(t, tc.expectedCode, rec.Code)
			if tc.expectedBody != "" {
				require.Equal(t, tc.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestAuthInsecureTrustsHeader(t *testing.T) {
	h := Auth(AuthConfig{Insecure: true})(echoCaller())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAddress, "0x00000000000000000000000000000000000000aa")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, common.HexToAddress("0xaa").Hex()+"|", rec.Body.String())
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func (l *stubLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	denied := &stubLimiter{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	RateLimit(denied, 1, time.Second, logger)(ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, []string{"api:ip:203.0.113.9"}, denied.keys)

	allowed := &stubLimiter{allow: true}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCaller(req.Context(), common.HexToAddress("0xAB")))
	RateLimit(allowed, 1, time.Second, logger)(ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"api:acct:0x00000000000000000000000000000000000000ab"}, allowed.keys)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://market.example"})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://market.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://market.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderSignature)
}
