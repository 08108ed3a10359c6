package domain

import (
	"crypto/md5"
	"strings"

	"github.com/google/uuid"
)

// EntryID derives the stable id of a catalog entry from its title and URL.
// The md5 digest of title+url is used verbatim as the 16 UUID bytes, so the
// same source data always maps to the same id across imports.
func EntryID(title, url string) string {
	return uuid.UUID(md5.Sum([]byte(title + url))).String()
}

// EmbeddingText is the text embedded for an entry: title, service content,
// target audience and conditions, space-joined in that order.
func EmbeddingText(e Entry) string {
	return strings.Join([]string{e.Title, e.ServiceContent, e.Target, e.Conditions}, " ")
}

// NormalizeQuery collapses newlines to spaces before a query is embedded.
func NormalizeQuery(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	return strings.ReplaceAll(text, "\n", " ")
}
