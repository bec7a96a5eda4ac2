package geoip

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrUnavailable is returned when no database is loaded.
	ErrUnavailable = errors.New("geoip resolver unavailable")
	// ErrNonPublicAddress is returned for loopback, private and other
	// addresses that no database can place.
	ErrNonPublicAddress = errors.New("geoip: address is not public")
	// ErrNoCountry is returned when the database has no country for the address.
	ErrNoCountry = errors.New("geoip: no country for address")
)

// CountryResolver resolves ISO country codes from IP addresses.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver looks up requester countries in a MaxMind GeoIP2 or GeoLite2
// country database.
type Resolver struct {
	reader *geoip2.Reader
}

// NewResolver opens the database at path. An empty path disables lookups and
// returns a nil resolver without error.
func NewResolver(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Resolver{reader: reader}, nil
}

// CountryCode returns the upper-case ISO 3166-1 alpha-2 code for ip.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	addr, err := publicAddr(ip)
	if err != nil {
		return "", err
	}
	record, err := r.reader.Country(addr.AsSlice())
	if err != nil {
		return "", fmt.Errorf("geoip: lookup %s: %w", addr, err)
	}
	if record == nil || record.Country.IsoCode == "" {
		return "", ErrNoCountry
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

func publicAddr(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("geoip: invalid ip %q: %w", ip, err)
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNonPublicAddress, addr)
	}
	return addr, nil
}
