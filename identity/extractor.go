package identity

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/c360/postgraph/errors"
)

// Extractor verifies HS256 bearer tokens signed with a shared secret
type Extractor struct {
	secret  []byte
	proxies []netip.Prefix
	logger  *slog.Logger
}

// Option configures an Extractor
type Option func(*Extractor) error

// WithTrustedProxies lists the peers (addresses or CIDR prefixes) whose
// X-Forwarded-For header is believed. Without it the header is ignored.
func WithTrustedProxies(proxies ...string) Option {
	return func(e *Extractor) error {
		prefixes, err := ParsePrefixes(proxies)
		if err != nil {
			return err
		}
		e.proxies = prefixes
		return nil
	}
}

// NewExtractor creates an extractor for tokens signed with secret
func NewExtractor(secret string, logger *slog.Logger, opts ...Option) (*Extractor, error) {
	if secret == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Extractor", "NewExtractor",
			"signing secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		secret: []byte(secret),
		logger: logger.With("component", "identity"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, errors.WrapInvalid(err, "Extractor", "NewExtractor", "apply option")
		}
	}
	return e, nil
}

// ParsePrefixes parses addresses and CIDR prefixes. A bare address becomes
// a single-host prefix.
func ParsePrefixes(list []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q is neither an address nor a prefix", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// FromHeader builds an identity from an Authorization header value
func (e *Extractor) FromHeader(header string) Identity {
	token, ok := bearerToken(header)
	if !ok {
		return Anonymous()
	}

	claims, err := e.parse(token)
	if err != nil {
		e.logger.Debug("Rejected bearer token", "error", err)
		return Anonymous()
	}

	id := userID(claims)
	if id == "" {
		e.logger.Debug("Rejected bearer token without a user id claim")
		return Anonymous()
	}
	return Identity{
		UserID:  id,
		Token:   token,
		IsAdmin: isAdmin(claims),
	}
}

// FromRequest builds an identity from the request's Authorization header
func (e *Extractor) FromRequest(r *http.Request) Identity {
	return e.FromHeader(r.Header.Get("Authorization"))
}

// Middleware stores the caller identity and address in the request context
func (e *Extractor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(), e.FromRequest(r))
		ctx = WithClientAddr(ctx, e.clientAddr(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (e *Extractor) parse(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method in token: %v", t.Header["alg"])
		}
		return e.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("unable to parse jwt token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("claims in jwt token is not map claims")
	}
	return claims, nil
}

// Issue signs claims with the extractor's secret. exp is set from ttl when
// positive and not already present.
func (e *Extractor) Issue(claims map[string]interface{}, ttl time.Duration) (string, error) {
	return Issue(e.secret, claims, ttl)
}

// Issue signs claims as an HS256 token
func Issue(secret []byte, claims map[string]interface{}, ttl time.Duration) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	if _, ok := mc["exp"]; !ok && ttl > 0 {
		mc["exp"] = time.Now().Add(ttl).Unix()
	}
	if _, ok := mc["iat"]; !ok {
		mc["iat"] = time.Now().Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(secret)
	if err != nil {
		return "", errors.WrapInvalid(err, "identity", "Issue", "sign token")
	}
	return signed, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func userID(claims jwt.MapClaims) string {
	for _, key := range []string{"id", "_id", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func isAdmin(claims jwt.MapClaims) bool {
	if admin, ok := claims["isAdmin"].(bool); ok {
		return admin
	}
	role, _ := claims["role"].(string)
	return role == "admin"
}

// clientAddr is the peer address, unless the peer is a trusted proxy. Then
// X-Forwarded-For is walked right to left and the first hop that is not a
// trusted proxy is the client.
func (e *Extractor) clientAddr(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !e.trusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !e.trusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (e *Extractor) trusted(host string) bool {
	if len(e.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range e.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
