// Package domain holds identifier primitives shared across modules.
//
// Identifiers are opaque positive 64-bit integers. Each entity gets its own
// named type so a binding id can never be passed where a site id is expected.
package domain

import (
	"strconv"
	"strings"

	dErrors "ezweb/pkg/domain-errors"
)

type (
	// UserID identifies a principal (site owner or administrator).
	UserID int64
	// SiteID identifies a website owned by exactly one user.
	SiteID int64
	// DefinitionID identifies a registry component definition.
	DefinitionID int64
	// BindingID identifies a per-site binding of a definition.
	BindingID int64
)

// maxIDLength bounds the decimal representation accepted at trust boundaries.
const maxIDLength = 19

func (id UserID) IsNil() bool       { return id <= 0 }
func (id SiteID) IsNil() bool       { return id <= 0 }
func (id DefinitionID) IsNil() bool { return id <= 0 }
func (id BindingID) IsNil() bool    { return id <= 0 }

func (id UserID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id SiteID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id DefinitionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id BindingID) String() string    { return strconv.FormatInt(int64(id), 10) }

// ParseUserID parses a decimal user id.
func ParseUserID(s string) (UserID, error) {
	v, err := parseID(s, "user id")
	return UserID(v), err
}

// ParseSiteID parses a decimal site id.
func ParseSiteID(s string) (SiteID, error) {
	v, err := parseID(s, "site id")
	return SiteID(v), err
}

// ParseDefinitionID parses a decimal definition id.
func ParseDefinitionID(s string) (DefinitionID, error) {
	v, err := parseID(s, "definition id")
	return DefinitionID(v), err
}

// ParseBindingID parses a decimal binding id.
func ParseBindingID(s string) (BindingID, error) {
	v, err := parseID(s, "binding id")
	return BindingID(v), err
}

func parseID(s, label string) (int64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if len(s) > maxIDLength || s[0] == '0' || strings.IndexFunc(s, notDigit) >= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return v, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }
