//
//  internal/requestinfo/requestinfo.go
//
//  Per-request client metadata: user-agent fingerprint and best-effort
//  geolocation.  The audit action records these next to each created user,
//  so operators can see which browser and country a creation came from.
//  The structs are inert and safe to log or JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// UA holds the parsed user-agent properties.
type UA struct {
	Browser     string `json:"browser"`     // "Chrome", "Firefox", ...
	Version     string `json:"version"`     // "124.0.6367"
	OS          string `json:"os"`          // "macOS", "Windows", ...
	Device      string `json:"device"`      // "Desktop", "Phone", ...
	IsBot       bool   `json:"bot"`         // crawler signature matched
	PrimaryLang string `json:"primaryLang"` // first Accept-Language tag
}

// Geo holds IP-based hints.  Empty when no database is loaded or the
// address has no match.
type Geo struct {
	IP         net.IP `json:"ip"`
	CountryISO string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

// Info is attached to the request context by Enricher.Middleware.
type Info struct {
	UA        UA        `json:"ua"`
	Geo       Geo       `json:"geo"`
	Timestamp time.Time `json:"ts"`
}

// cityReader is the subset of *geoip2.Reader we use.
type cityReader interface {
	City(net.IP) (*geoip2.City, error)
}

// Enricher builds Info values.  The zero value parses user agents only.
type Enricher struct {
	geo    cityReader
	closer func() error
}

// NewEnricher opens the GeoLite2-City database at dbPath.  An empty path
// disables geolocation.
func NewEnricher(dbPath string) (*Enricher, error) {
	if dbPath == "" {
		return &Enricher{}, nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Enricher{geo: r, closer: r.Close}, nil
}

// Close releases the geo database, if any.
func (e *Enricher) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

type ctxKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the Info stored by the middleware, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// Lookup builds Info from raw header values and a client address.
func (e *Enricher) Lookup(userAgent, acceptLang string, ip net.IP) *Info {
	return &Info{
		UA:        parseUA(userAgent, acceptLang),
		Geo:       e.lookupGeo(ip),
		Timestamp: time.Now().UTC(),
	}
}

func parseUA(header, acceptLang string) UA {
	u := uasurfer.Parse(header)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     versionString(u.Browser.Version),
		OS:          osName,
		Device:      deviceName(u.DeviceType),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// versionString renders "major.minor.patch" without trailing zero parts.
func versionString(v uasurfer.Version) string {
	parts := []int{v.Major, v.Minor, v.Patch}
	for len(parts) > 1 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strconv.Itoa(p)
	}
	return strings.Join(out, ".")
}

func deviceName(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang returns the first tag before any ";q=" weight, lowercased.
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}

func (e *Enricher) lookupGeo(ip net.IP) Geo {
	if e.geo == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := e.geo.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}
