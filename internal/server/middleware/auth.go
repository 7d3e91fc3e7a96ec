package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/escrowmarket/internal/crypto"
)

// Request headers carrying the caller identity.
const (
	HeaderAddress   = "X-Market-Address"
	HeaderTimestamp = "X-Market-Timestamp"
	HeaderSignature = "X-Market-Signature"
)

const maxSignedBody = 1 << 20

type callerKey struct{}

// Caller returns the authenticated account of the request, if any.
func Caller(ctx context.Context) (common.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(common.Address)
	return a, ok
}

// WithCaller attaches an authenticated account to ctx.
func WithCaller(ctx context.Context, a common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, a)
}

// AuthConfig controls request authentication.
type AuthConfig struct {
	// Insecure trusts X-Market-Address without a signature. Local use only.
	Insecure bool
	// MaxSkew bounds the age of a signed timestamp.
	MaxSkew time.Duration
	Now     func() time.Time
}

// Auth authenticates callers by EIP-191 signature over
// timestamp || method || request URI || body. Requests without identity
// headers pass through anonymous; handlers decide whether a caller is needed.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := r.Header.Get(HeaderAddress)
			if claimed == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(claimed) {
				writeUnauthorized(w, "malformed address")
				return
			}
			addr := common.HexToAddress(claimed)
			if cfg.Insecure {
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
				return
			}

			ts := r.Header.Get(HeaderTimestamp)
			unix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or malformed timestamp")
				return
			}
			if age := cfg.Now().Sub(time.Unix(unix, 0)); age > cfg.MaxSkew || age < -cfg.MaxSkew {
				writeUnauthorized(w, "stale timestamp")
				return
			}
			sig, err := hexutil.Decode(r.Header.Get(HeaderSignature))
			if err != nil {
				writeUnauthorized(w, "missing or malformed signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := crypto.RecoverText(crypto.RequestMessage(ts, r.Method, r.URL.RequestURI(), body), sig)
			if err != nil || signer != addr {
				writeUnauthorized(w, "signature does not match address")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
