package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/v1/doctors/patients/P100/ehr":       "/v1/doctors/patients/:id/ehr",
		"/v1/doctors/patients":                "/v1/doctors/patients",
		"/v1/patients/history/D200":           "/v1/patients/history/:id",
		"/v1/patients/history/D200?access_only=1": "/v1/patients/history/:id",
		"/v1/patients/history":                "/v1/patients/history",
		"/v1/patients/ehr/entries":            "/v1/patients/ehr/entries",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
