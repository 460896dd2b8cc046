package location

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"bike-tracker/internal/tracker"
)

const (
	defaultProcessNoise     = 0.5 // (m/s²)², expected acceleration of a bike
	defaultMeasurementNoise = 8.0 // meters, receiver accuracy
	defaultResetGap         = 2 * time.Minute
	metersPerDegree         = 111195.0
)

// FilterConfig tunes the jitter filter. Zero fields take defaults.
type FilterConfig struct {
	ProcessNoise     float64
	MeasurementNoise float64
	ResetGap         time.Duration // fixes further apart restart the filter
}

// JitterFilter smooths receiver jitter on latitude and longitude with a
// constant velocity Kalman filter. State is [lat, lng, lat/s, lng/s].
type JitterFilter struct {
	config     FilterConfig
	state      *mat.VecDense
	covariance *mat.Dense
	lastUpdate time.Time
	primed     bool
}

// NewJitterFilter creates a filter with default or provided config.
func NewJitterFilter(cfg *FilterConfig) *JitterFilter {
	config := FilterConfig{
		ProcessNoise:     defaultProcessNoise,
		MeasurementNoise: defaultMeasurementNoise,
		ResetGap:         defaultResetGap,
	}
	if cfg != nil {
		if cfg.ProcessNoise > 0 {
			config.ProcessNoise = cfg.ProcessNoise
		}
		if cfg.MeasurementNoise > 0 {
			config.MeasurementNoise = cfg.MeasurementNoise
		}
		if cfg.ResetGap > 0 {
			config.ResetGap = cfg.ResetGap
		}
	}

	return &JitterFilter{
		config:     config,
		state:      mat.NewVecDense(4, nil),
		covariance: mat.NewDense(4, 4, nil),
	}
}

// Reset forgets the track, e.g. after the receiver slept.
func (f *JitterFilter) Reset() {
	f.primed = false
}

// Apply filters a fix taken at the given time. Positions without a fix pass
// through untouched.
func (f *JitterFilter) Apply(pos tracker.Position, at time.Time) tracker.Position {
	if !pos.FixValid {
		return pos
	}

	dt := at.Sub(f.lastUpdate).Seconds()
	if !f.primed || dt > f.config.ResetGap.Seconds() || dt < 0 {
		f.prime(pos, at)
		return pos
	}
	if dt == 0 {
		dt = 1.0
	}

	// Noise is configured in meters; the state is in degrees.
	r := f.config.MeasurementNoise / metersPerDegree
	q := f.config.ProcessNoise / (metersPerDegree * metersPerDegree)

	F := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	Q := mat.NewDense(4, 4, []float64{
		0.25 * dt * dt * dt * dt * q, 0, 0.5 * dt * dt * dt * q, 0,
		0, 0.25 * dt * dt * dt * dt * q, 0, 0.5 * dt * dt * dt * q,
		0.5 * dt * dt * dt * q, 0, dt * dt * q, 0,
		0, 0.5 * dt * dt * dt * q, 0, dt * dt * q,
	})

	// Predict
	xPred := mat.NewVecDense(4, nil)
	xPred.MulVec(F, f.state)
	pPred := mat.NewDense(4, 4, nil)
	pPred.Product(F, f.covariance, F.T())
	pPred.Add(pPred, Q)

	// Update
	H := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	R := mat.NewDense(2, 2, []float64{
		r * r, 0,
		0, r * r,
	})
	z := mat.NewVecDense(2, []float64{pos.Lat, pos.Lng})

	var hx mat.VecDense
	hx.MulVec(H, xPred)
	y := mat.NewVecDense(2, nil)
	y.SubVec(z, &hx)

	var S mat.Dense
	S.Product(H, pPred, H.T())
	S.Add(&S, R)

	var sInv mat.Dense
	if err := sInv.Inverse(&S); err != nil {
		// Singular innovation; keep the measurement and restart.
		f.prime(pos, at)
		return pos
	}

	var K mat.Dense
	K.Product(pPred, H.T(), &sInv)

	var ky mat.VecDense
	ky.MulVec(&K, y)
	f.state.AddVec(xPred, &ky)

	var kh mat.Dense
	kh.Mul(&K, H)
	ikh := identity(4)
	ikh.Sub(ikh, &kh)
	f.covariance.Mul(ikh, pPred)

	f.lastUpdate = at

	filtered := pos
	filtered.Lat = f.state.AtVec(0)
	filtered.Lng = f.state.AtVec(1)
	return filtered
}

func (f *JitterFilter) prime(pos tracker.Position, at time.Time) {
	r := f.config.MeasurementNoise / metersPerDegree

	f.state.SetVec(0, pos.Lat)
	f.state.SetVec(1, pos.Lng)
	f.state.SetVec(2, 0)
	f.state.SetVec(3, 0)

	f.covariance.Zero()
	f.covariance.Set(0, 0, r*r)
	f.covariance.Set(1, 1, r*r)
	// Up to ~10 m/s of unknown initial velocity.
	v := 10 / metersPerDegree
	f.covariance.Set(2, 2, v*v)
	f.covariance.Set(3, 3, v*v)

	f.lastUpdate = at
	f.primed = true
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
