// Command smoke exercises the consent workflow end to end against a
// running instance seeded with the demo accounts. It fails loudly on
// the first unexpected response, so it doubles as a deployment check.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

var (
	baseURL = flag.String("base", "http://localhost:8080", "API base URL")
	timeout = flag.Duration("timeout", 10*time.Second, "per-request timeout")
)

type client struct {
	http  *http.Client
	base  string
	token string
}

func (c *client) do(method, path string, body any, want int, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d, want %d", method, path, resp.StatusCode, want)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func login(c *client, email string) (string, error) {
	var res struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(http.MethodPost, "/v1/auth/token", map[string]string{
		"email":    email,
		"password": "password",
	}, http.StatusOK, &res)
	return res.AccessToken, err
}

func main() {
	flag.Parse()
	hc := &http.Client{Timeout: *timeout}

	anon := &client{http: hc, base: *baseURL}
	if err := anon.do(http.MethodGet, "/healthz", nil, http.StatusOK, nil); err != nil {
		log.Fatalf("healthz: %v", err)
	}

	doctorTok, err := login(anon, "d.ramirez@citymed.example")
	if err != nil {
		log.Fatalf("doctor login: %v", err)
	}
	patientTok, err := login(anon, "m.ortiz@patients.example")
	if err != nil {
		log.Fatalf("patient login: %v", err)
	}
	doctor := &client{http: hc, base: *baseURL, token: doctorTok}
	patient := &client{http: hc, base: *baseURL, token: patientTok}

	steps := []struct {
		name string
		run  func() error
	}{
		{"denied read before consent", func() error {
			return doctor.do(http.MethodGet, "/v1/doctors/patients/P100/ehr", nil, http.StatusNotFound, nil)
		}},
		{"patient creates document", func() error {
			err := patient.do(http.MethodPost, "/v1/patients/ehr", map[string]string{
				"diagnosis": "hypertension",
				"allergies": "penicillin",
			}, http.StatusCreated, nil)
			if err != nil {
				// A previous smoke run may have left the document behind.
				return patient.do(http.MethodGet, "/v1/patients/ehr", nil, http.StatusOK, nil)
			}
			return nil
		}},
		{"doctor requests access", func() error {
			return doctor.do(http.MethodPost, "/v1/doctors/requests", map[string]string{
				"patient_id": "P100",
			}, http.StatusOK, nil)
		}},
		{"patient accepts", func() error {
			return patient.do(http.MethodPost, "/v1/patients/decisions", map[string]string{
				"doctor_id": "D100",
				"decision":  "accept",
			}, http.StatusOK, nil)
		}},
		{"doctor reads document", func() error {
			return doctor.do(http.MethodGet, "/v1/doctors/patients/P100/ehr", nil, http.StatusOK, nil)
		}},
		{"doctor updates document", func() error {
			return doctor.do(http.MethodPut, "/v1/doctors/patients/P100/ehr", map[string]string{
				"diagnosis": "hypertension, controlled",
				"treatment": "lisinopril 10mg",
			}, http.StatusOK, nil)
		}},
		{"patient sees history", func() error {
			var hist struct {
				Events []json.RawMessage `json:"events"`
			}
			if err := patient.do(http.MethodGet, "/v1/patients/history", nil, http.StatusOK, &hist); err != nil {
				return err
			}
			if len(hist.Events) == 0 {
				return fmt.Errorf("history is empty")
			}
			return nil
		}},
		{"patient revokes", func() error {
			return patient.do(http.MethodPost, "/v1/patients/revocations", map[string]string{
				"doctor_id": "D100",
			}, http.StatusOK, nil)
		}},
		{"denied read after revoke", func() error {
			return doctor.do(http.MethodGet, "/v1/doctors/patients/P100/ehr", nil, http.StatusNotFound, nil)
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			log.Fatalf("FAIL %s: %v", step.name, err)
		}
		log.Printf("ok   %s", step.name)
	}
	log.Println("smoke passed")
}
