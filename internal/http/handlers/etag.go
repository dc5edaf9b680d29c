package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// cachePolicy is how one kind of read is tagged and who may store it.
// Every policy forces revalidation: seat counts move with each registration.
type cachePolicy struct {
	prefix  string
	control string
}

var (
	// detail and upcoming embed registrant names and emails
	eventDetailCache = cachePolicy{prefix: "event", control: "private, no-cache"}
	upcomingCache    = cachePolicy{prefix: "upcoming", control: "private, no-cache"}
	statsCache       = cachePolicy{prefix: "stats", control: "public, no-cache"}
)

func (p cachePolicy) etag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + p.prefix + "-" + hex.EncodeToString(sum[:12]) + `"`
}

// respondCached writes payload as a 200 tagged under policy, or a bodiless
// 304 when a GET or HEAD already holds the same encoding.
func respondCached(ctx *gin.Context, policy cachePolicy, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		_ = ctx.Error(err)
		RespondInternal(ctx)
		return
	}

	etag := policy.etag(body)
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", policy.control)

	if conditional(ctx.Request.Method) && ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func conditional(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// If-None-Match uses weak comparison, so W/ prefixes are ignored on both sides.
func ifNoneMatchMatches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	current = opaqueTag(current)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == current {
			return true
		}
	}
	return false
}

func opaqueTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "W/")
}
