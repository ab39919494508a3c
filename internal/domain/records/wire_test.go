package records

import (
	"encoding/json"
	"testing"
)

func decodeRaw(t *testing.T, s string) rawRecord {
	t.Helper()
	var r rawRecord
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return r
}

func TestNormalizeVaccination_SnakeCase(t *testing.T) {
	r := decodeRaw(t, `{
		"id": 17,
		"appointment_id": 4,
		"patient_id": "p1",
		"hospital_id": 9,
		"vaccine_id": "v1",
		"dose_number": "2",
		"status": "Completed",
		"vaccination_date": "2024-03-01",
		"patient": {"id": "p1", "name": "Asha"},
		"vaccine": {"id": "v1", "name": "Covaxin", "doses_required": 2}
	}`)
	v := normalizeVaccination(r)

	if v.ID != "17" || v.AppointmentID != "4" || v.HospitalID != "9" {
		t.Errorf("expected numeric ids rendered as strings, got %+v", v)
	}
	if v.DoseNumber != 2 || !v.Completed() || v.VaccinationDate != "2024-03-01" {
		t.Errorf("unexpected fields %+v", v)
	}
	if v.PatientName() != "Asha" || v.HospitalName() != UnknownName {
		t.Errorf("unexpected names %q %q", v.PatientName(), v.HospitalName())
	}
	if v.Vaccine == nil || v.Vaccine.DosesRequired != 2 {
		t.Errorf("expected vaccine snapshot, got %+v", v.Vaccine)
	}
}

func TestNormalizeAppointment_NestedIDsAndDefaults(t *testing.T) {
	r := decodeRaw(t, `{
		"_id": "a1",
		"patient": {"_id": "p7", "name": "Ravi"},
		"hospital": {"id": 3, "name": "City"},
		"purpose": "Covid Test",
		"date": "2024-01-01",
		"time": "09:30"
	}`)
	a := normalizeAppointment(r)

	if a.ID != "a1" || a.PatientID != "p7" || a.HospitalID != "3" {
		t.Errorf("expected ids from snapshots, got %+v", a)
	}
	if a.Status != AppointmentPending {
		t.Errorf("expected default Pending, got %s", a.Status)
	}
	if a.HospitalName() != "City" {
		t.Errorf("expected hospital name, got %q", a.HospitalName())
	}
}

func TestNormalizeAppointment_CamelCaseFallback(t *testing.T) {
	a := normalizeAppointment(decodeRaw(t, `{"id":"a1","patientId":"p1","hospitalId":"h1","status":"Approved"}`))
	if a.PatientID != "p1" || a.HospitalID != "h1" || a.Status != AppointmentApproved {
		t.Errorf("unexpected %+v", a)
	}
}

func TestNormalizeVaccine(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantDoses int
		wantAvail bool
	}{
		{"defaults", `{"id":1,"name":"A"}`, 1, false},
		{"snake", `{"id":1,"doses_required":3,"is_available":1}`, 3, true},
		{"camel", `{"id":1,"dosesRequired":"2","available":"true"}`, 2, true},
		{"explicit zero kept", `{"id":1,"doses_required":0}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := normalizeVaccine(decodeRaw(t, tt.raw))
			if v.DosesRequired != tt.wantDoses || v.Available != tt.wantAvail {
				t.Errorf("got %+v", v)
			}
		})
	}
}

func TestNormalizeCovidTest(t *testing.T) {
	c := normalizeCovidTest(decodeRaw(t, `{"id":5,"appointment_id":2,"patient_id":1,"hospital_id":3,"result":"Positive","test_date":"2024-02-02","file_url":"/uploads/r.pdf"}`))
	if c.ID != "5" || c.Result != ResultPositive || c.FileURL != "/uploads/r.pdf" {
		t.Errorf("unexpected %+v", c)
	}
	if c.PatientName() != UnknownName {
		t.Errorf("expected Unknown without snapshot, got %q", c.PatientName())
	}
}

func TestNormalizeAll_SkipsNull(t *testing.T) {
	var raws []rawRecord
	if err := json.Unmarshal([]byte(`[{"id":1,"title":"a","is_published":true}, null]`), &raws); err != nil {
		t.Fatal(err)
	}
	news := normalizeAll(raws, normalizeNews)
	if len(news) != 1 || !news[0].Published {
		t.Errorf("unexpected %+v", news)
	}
}

func TestRequestBodies_SnakeCase(t *testing.T) {
	b, err := json.Marshal(vaccinationBody(NewVaccination{PatientID: "p1", DoseNumber: 2, VaccinationDate: "d"}))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"patient_id", "dose_number", "vaccination_date", "appointment_id"} {
		if _, ok := m[k]; !ok {
			t.Errorf("expected key %s in %s", k, b)
		}
	}
}
