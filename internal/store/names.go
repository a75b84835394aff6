package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

var (
	nonIdent   = regexp.MustCompile(`[^a-z0-9]+`)
	validTable = regexp.MustCompile(`^sec_[a-z0-9_]+$`)
)

// TableName derives the section table name for a filing. The readable part
// is a slug of ticker, category and date; the hash suffix keeps names
// distinct when two identities slug to the same text ("10-K" vs "10_K").
func TableName(id doctree.Identity) string {
	date := id.Date.Format("2006-01-02")
	sum := sha256.Sum256([]byte(id.Ticker + "\x00" + id.Category + "\x00" + date))
	return fmt.Sprintf("sec_%s_%s_%s_%s",
		slug(id.Ticker), slug(id.Category), id.Date.Format("20060102"), hex.EncodeToString(sum[:4]))
}

func slug(s string) string {
	s = nonIdent.ReplaceAllString(strings.ToLower(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "x"
	}
	return s
}

// quoteTable validates a section table name before it is interpolated into
// SQL.
func quoteTable(name string) (string, error) {
	if !validTable.MatchString(name) {
		return "", fmt.Errorf("invalid section table name %q", name)
	}
	return `"` + name + `"`, nil
}
