// Package httpapi is the HTTP surface of the service. Caller identity
// always comes from the bearer token; ids in paths and bodies only ever
// name the counterparty.
package httpapi

import (
	"net/http"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/consent"
	"medledger.org/internal/ehr"
	"medledger.org/internal/obs"
	"medledger.org/internal/stream"
)

const defaultMaxBody = 1 << 20 // 1 MiB

// Options collects the API's collaborators and tunables.
type Options struct {
	Version    string
	Env        string
	ReadyProbe ReadyProbe

	Auth    *auth.Service
	Consent *consent.Engine
	Records *ehr.Service
	History *audit.Aggregator
	Stream  *stream.Stream

	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64
}

// API wires handlers onto a mux and assembles the middleware chain.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	env        string

	auth    *auth.Service
	consent *consent.Engine
	records *ehr.Service
	history *audit.Aggregator
	stream  *stream.Stream

	rateRPS   int
	rateBurst int
	maxBody   int64
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		env:        opts.Env,
		auth:       opts.Auth,
		consent:    opts.Consent,
		records:    opts.Records,
		history:    opts.History,
		stream:     opts.Stream,
		rateRPS:    opts.RateLimitRPS,
		rateBurst:  opts.RateLimitBurst,
		maxBody:    opts.MaxBodyBytes,
	}
	if a.rateRPS <= 0 {
		a.rateRPS = 50
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.maxBody <= 0 {
		a.maxBody = defaultMaxBody
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.Token)

	a.mux.HandleFunc("POST /v1/doctors/requests", a.DoctorRequestAccess)
	a.mux.HandleFunc("GET /v1/doctors/patients", a.DoctorPatients)
	a.mux.HandleFunc("GET /v1/doctors/patients/{patientID}/ehr", a.DoctorGetEHR)
	a.mux.HandleFunc("PUT /v1/doctors/patients/{patientID}/ehr", a.DoctorUpdateEHR)

	a.mux.HandleFunc("GET /v1/patients/requests", a.PatientPendingRequests)
	a.mux.HandleFunc("POST /v1/patients/decisions", a.PatientDecide)
	a.mux.HandleFunc("POST /v1/patients/revocations", a.PatientRevoke)

	a.mux.HandleFunc("POST /v1/patients/ehr", a.PatientCreateEHR)
	a.mux.HandleFunc("GET /v1/patients/ehr", a.PatientGetEHR)
	a.mux.HandleFunc("POST /v1/patients/ehr/entries", a.PatientAppendEntry)

	a.mux.HandleFunc("GET /v1/patients/history", a.PatientHistory)
	a.mux.HandleFunc("GET /v1/patients/history/{doctorID}", a.PatientHistory)

	a.mux.HandleFunc("GET /v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.rateRPS)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = RequestID(h)
	return h
}
