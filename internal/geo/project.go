package geo

import "math"

// GRS80 ellipsoid and UTM constants. ETRS89 and WGS84 differ by well under a
// meter in Andalusia, so WGS84 provider output is projected as-is.
const (
	grs80A        = 6378137.0
	grs80F        = 1 / 298.257222101
	utmScale      = 0.9996
	falseEasting  = 500000.0
	utmZone30CM   = -3.0
	degreesToRads = math.Pi / 180
)

// FromLonLat projects a geographic WGS84/ETRS89 coordinate onto UTM zone 30N.
func FromLonLat(lon, lat float64) Point {
	return projectUTM(lon, lat, utmZone30CM)
}

// projectUTM applies the Transverse Mercator series (Snyder, USGS PP 1395)
// around the given central meridian.
func projectUTM(lon, lat, centralMeridian float64) Point {
	e2 := grs80F * (2 - grs80F)
	e4 := e2 * e2
	e6 := e4 * e2
	ep2 := e2 / (1 - e2)

	phi := lat * degreesToRads
	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := grs80A / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * (lon - centralMeridian) * degreesToRads

	m := grs80A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := utmScale*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*ep2)*a5/120) + falseEasting
	y := utmScale * (m + n*tanPhi*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*ep2)*a6/720))

	return Point{X: x, Y: y}
}
