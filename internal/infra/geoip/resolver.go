package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// CountryResolver maps client IP addresses to ISO country codes. Request
// logging uses it; a nil resolver simply yields no country field.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver looks up countries in a local MaxMind GeoIP2 database.
type Resolver struct {
	db *geoip2.Reader
}

// NewResolver opens the database at path. An empty path disables lookups
// and returns a nil resolver without error.
func NewResolver(path string) (CountryResolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{db: db}, nil
}

func (r *Resolver) CountryCode(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.Country.IsoCode, nil
}

func (r *Resolver) Close() error {
	return r.db.Close()
}
