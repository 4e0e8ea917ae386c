package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	apperrors "workplacemapping/pkg/errors"

	goahttp "goa.design/goa/v3/http"
	goamiddleware "goa.design/goa/v3/middleware"
)

var httpLog = logging.For("http")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code      apperrors.ErrorCode `json:"code"`
	Message   string              `json:"message"`
	Fields    map[string]string   `json:"fields,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		httpLog.WithError(err).Warn("failed to encode response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeBadRequest, "request body must be valid JSON", err)
	}
	return nil
}

// toAppError maps domain and storage errors onto API errors.
func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrPostNotFound):
		return apperrors.New(apperrors.ErrCodeNotFound, "post not found")
	case errors.Is(err, domain.ErrCommentNotFound):
		return apperrors.New(apperrors.ErrCodeNotFound, "comment not found")
	case errors.Is(err, domain.ErrInvalidParent):
		return apperrors.NewValidation(domain.ErrInvalidParent.Error(), map[string]string{"parentId": domain.ErrInvalidParent.Error()})
	case errors.Is(err, domain.ErrInvalidStatus):
		return apperrors.Wrap(apperrors.ErrCodeBadRequest, "status must be one of pending, approved, spam, rejected", err)
	default:
		return apperrors.Wrap(apperrors.ErrCodeInternalError, "internal server error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	status := appErr.HTTPStatus()

	reqID, _ := ctx.Value(goamiddleware.RequestIDKey).(string)
	if status >= http.StatusInternalServerError {
		httpLog.WithError(err).WithField("request_id", reqID).Error("request failed")
	}

	writeJSON(ctx, w, status, errorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Fields:    appErr.Fields,
		RequestID: reqID,
	})
}

// ClientIPs resolves the address a request came from. X-Forwarded-For is
// only read when the direct peer is a trusted proxy, and then the right-most
// hop that is not itself a trusted proxy wins.
type ClientIPs struct {
	trusted []*net.IPNet
}

// NewClientIPs accepts CIDR blocks or bare addresses.
func NewClientIPs(proxies []string) (*ClientIPs, error) {
	c := &ClientIPs{}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			c.trusted = append(c.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, block, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		c.trusted = append(c.trusted, block)
	}
	return c, nil
}

func (c *ClientIPs) isTrusted(ip net.IP) bool {
	if c == nil {
		return false
	}
	for _, block := range c.trusted {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// From returns the client address for r. A nil ClientIPs trusts no proxy.
func (c *ClientIPs) From(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	peerIP := net.ParseIP(peer)
	if peerIP == nil || !c.isTrusted(peerIP) {
		return peer
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(header, ",")...)
	}
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip.String()
		if !c.isTrusted(ip) {
			break
		}
	}
	return client
}

// pageParams reads offset/limit query parameters. Bad values fall back to
// the defaults.
func pageParams(r *http.Request, defaultLimit, maxLimit int) (offset, limit int) {
	q := r.URL.Query()
	limit = defaultLimit
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return offset, limit
}
