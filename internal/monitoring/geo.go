package monitoring

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// CountryResolver maps an IP address to an ISO 3166 country code.
type CountryResolver interface {
	CountryOf(ip string) (string, error)
}

// GeoIPResolver resolves countries from a MaxMind-format database.
type GeoIPResolver struct {
	db *geoip2.Reader
}

// OpenGeoIP opens the database at path. An empty path or a missing file
// disables IP resolution and returns nil, nil.
func OpenGeoIP(path string) (*GeoIPResolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPResolver{db: db}, nil
}

// CountryOf returns "" for unparsable, private or unknown addresses.
func (r *GeoIPResolver) CountryOf(ip string) (string, error) {
	if r == nil || r.db == nil {
		return "", nil
	}
	host, _, err := net.SplitHostPort(ip)
	if err != nil {
		host = ip
	}
	parsed := net.ParseIP(strings.TrimSpace(host))
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return "", nil
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		return "", err
	}
	return record.Country.IsoCode, nil
}

// Close releases the database.
func (r *GeoIPResolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
