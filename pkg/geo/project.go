package geo

import (
	"fmt"
	"math"
	"sync"
)

// Projection converts geodetic WGS84 degrees into planar meters.
type Projection interface {
	Forward(lon, lat float64) XY
}

// CRS couples a projection with the geodetic area in which positions are
// accepted. Updates outside the bounds are rejected before projection.
type CRS struct {
	Code   int
	Name   string
	Bounds Bounds
	proj   Projection
}

func (c *CRS) Supports(lon, lat float64) bool {
	return c.Bounds.Contains(lon, lat)
}

func (c *CRS) Project(lon, lat float64) XY {
	return c.proj.Forward(lon, lat)
}

var (
	crsMu       sync.RWMutex
	crsRegistry = map[int]*CRS{}
)

// LookupCRS returns the registered CRS for an EPSG code. Instances are
// built once and cached; projections are immutable and safe for concurrent
// use.
func LookupCRS(code int) (*CRS, error) {
	crsMu.RLock()
	c, ok := crsRegistry[code]
	crsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported CRS EPSG:%d", code)
	}
	return c, nil
}

//nolint:gochecknoinits // static EPSG catalogue
func init() {
	register(&CRS{
		Code: 3112,
		Name: "GDA94 / Geoscience Australia Lambert",
		// EPSG area of use for the projected CRS
		Bounds: Bounds{MinLon: 93.41, MinLat: -60.56, MaxLon: 173.35, MaxLat: -8.47},
		proj: newLambertConformalConic(grs80, lambertParams{
			latOrigin: 0,
			lonOrigin: 134,
			lat1:      -18,
			lat2:      -36,
		}),
	})
	register(&CRS{
		Code:   3857,
		Name:   "WGS 84 / Pseudo-Mercator",
		Bounds: Bounds{MinLon: -180, MinLat: -85.06, MaxLon: 180, MaxLat: 85.06},
		proj:   webMercator{},
	})
}

func register(c *CRS) {
	crsMu.Lock()
	defer crsMu.Unlock()
	crsRegistry[c.Code] = c
}

type ellipsoid struct {
	a    float64 // semi-major axis
	invF float64 // inverse flattening
}

var grs80 = ellipsoid{a: 6378137, invF: 298.257222101}

func (e ellipsoid) eccentricity() float64 {
	f := 1 / e.invF
	return math.Sqrt(2*f - f*f)
}

type lambertParams struct {
	latOrigin, lonOrigin float64 // degrees
	lat1, lat2           float64 // standard parallels, degrees
	falseE, falseN       float64
}

// lambertConformalConic implements the two standard parallel case (EPSG
// method 9802). The derived constants are computed once at registration.
type lambertConformalConic struct {
	p          lambertParams
	a, e       float64
	n, f, rho0 float64
}

func newLambertConformalConic(ell ellipsoid, p lambertParams) *lambertConformalConic {
	e := ell.eccentricity()
	phi1 := rad(p.lat1)
	phi2 := rad(p.lat2)
	phi0 := rad(p.latOrigin)

	m1 := lccM(phi1, e)
	m2 := lccM(phi2, e)
	t0 := lccT(phi0, e)
	t1 := lccT(phi1, e)
	t2 := lccT(phi2, e)

	n := (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	f := m1 / (n * math.Pow(t1, n))
	rho0 := ell.a * f * math.Pow(t0, n)

	return &lambertConformalConic{p: p, a: ell.a, e: e, n: n, f: f, rho0: rho0}
}

func (l *lambertConformalConic) Forward(lon, lat float64) XY {
	t := lccT(rad(lat), l.e)
	rho := l.a * l.f * math.Pow(t, l.n)
	theta := l.n * (rad(lon) - rad(l.p.lonOrigin))
	return XY{
		X: l.p.falseE + rho*math.Sin(theta),
		Y: l.p.falseN + l.rho0 - rho*math.Cos(theta),
	}
}

func lccM(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e*e*s*s)
}

func lccT(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) /
		math.Pow((1-e*s)/(1+e*s), e/2)
}

type webMercator struct{}

func (webMercator) Forward(lon, lat float64) XY {
	const a = 6378137.0
	return XY{
		X: a * rad(lon),
		Y: a * math.Log(math.Tan(math.Pi/4+rad(lat)/2)),
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
