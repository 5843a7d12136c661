// Package assetref handles parsing and validation of custodial platform names,
// platform asset identifiers, and the "platform/assetId" reference form used
// by the HTTP layer and the automation engine.
package assetref

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Supported asset classes. The registry stores the class verbatim; these are
// the ones the custodial platforms currently report.
const (
	TypeWine        = "WINE"
	TypeWhisky      = "WHISKY"
	TypeArt         = "ART"
	TypeRealEstate  = "REAL_ESTATE"
	TypeCollectible = "COLLECTIBLE"
	TypeWatch       = "WATCH"
	TypeCommodity   = "COMMODITY"
)

var validTypes = map[string]bool{
	TypeWine:        true,
	TypeWhisky:      true,
	TypeArt:         true,
	TypeRealEstate:  true,
	TypeCollectible: true,
	TypeWatch:       true,
	TypeCommodity:   true,
}

// platformRegex matches lowercase platform keys: splint_invest, masterworks.
var platformRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// assetRegex matches platform asset ids: BORDEAUX-2019, MW-0042, lot_17.
var assetRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

var (
	ErrInvalidPlatform = errors.New("assetref: invalid platform name")
	ErrInvalidAssetID  = errors.New("assetref: invalid asset id")
	ErrInvalidType     = errors.New("assetref: unsupported asset type")
	ErrInvalidRef      = errors.New("assetref: invalid asset reference")
)

// Ref identifies one asset on one custodial platform.
type Ref struct {
	Platform string `json:"platform"`
	AssetID  string `json:"asset_id"`
}

// String renders the reference as "platform/assetId".
func (r Ref) String() string {
	return r.Platform + "/" + r.AssetID
}

// ValidatePlatform checks a platform name.
func ValidatePlatform(name string) error {
	if !platformRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, name)
	}
	return nil
}

// ValidateAssetID checks a platform asset identifier.
func ValidateAssetID(id string) error {
	if !assetRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAssetID, id)
	}
	return nil
}

// ValidateType checks an asset class. Comparison is case-insensitive; the
// normalized upper-case form is returned.
func ValidateType(assetType string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(assetType))
	if !validTypes[t] {
		return "", fmt.Errorf("%w: %s", ErrInvalidType, assetType)
	}
	return t, nil
}

// New validates both halves and returns the reference.
func New(platform, assetID string) (Ref, error) {
	if err := ValidatePlatform(platform); err != nil {
		return Ref{}, err
	}
	if err := ValidateAssetID(assetID); err != nil {
		return Ref{}, err
	}
	return Ref{Platform: platform, AssetID: assetID}, nil
}

// Parse parses a "platform/assetId" reference.
func Parse(s string) (Ref, error) {
	platform, assetID, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q (expected platform/assetId)", ErrInvalidRef, s)
	}
	return New(platform, assetID)
}
