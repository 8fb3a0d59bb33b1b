// Package geoip resolves client IPs to ISO country codes for event
// enrichment. A MaxMind GeoIP2 database is preferred; a JSON CIDR table can
// stand in where no MaxMind license is available (tests, dev).
package geoip

import (
	"encoding/json"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Resolver answers country lookups. A nil Resolver resolves everything to
// the empty string, so callers never need to branch on configuration.
type Resolver struct {
	db       *geoip2.Reader
	fallback []cidrEntry
}

type cidrEntry struct {
	net     *net.IPNet
	country string
}

// Open loads the database at path. A file that does not parse as GeoIP2 is
// retried as a JSON array of {"net": "10.0.0.0/8", "country": "US"} entries.
func Open(path string) (*Resolver, error) {
	r := &Resolver{}
	db, err := geoip2.Open(path)
	if err == nil {
		r.db = db
		return r, nil
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, err
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if json.Unmarshal(data, &entries) != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			r.fallback = append(r.fallback, cidrEntry{net: n, country: e.Country})
		}
	}
	return r, nil
}

// Country returns the ISO country code for ip, or "" when unknown.
func (r *Resolver) Country(ip net.IP) string {
	if r == nil || ip == nil {
		return ""
	}
	if r.db != nil {
		rec, err := r.db.Country(ip)
		if err != nil || rec == nil {
			return ""
		}
		return rec.Country.IsoCode
	}
	for _, e := range r.fallback {
		if e.net.Contains(ip) {
			return e.country
		}
	}
	return ""
}

// Close releases the underlying database.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
