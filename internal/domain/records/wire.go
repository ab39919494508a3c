package records

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// rawRecord is one backend object before normalization. Lookups take several
// candidate keys because the backend mixes snake_case and camelCase and emits
// ids as numbers or strings.
type rawRecord map[string]json.RawMessage

func (r rawRecord) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if ok && len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

// str returns the first present key as a string. Numbers and booleans are
// rendered in their JSON form.
func (r rawRecord) str(keys ...string) string {
	v, ok := r.lookup(keys...)
	if !ok {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return s
	}
	if v[0] == '{' || v[0] == '[' {
		return ""
	}
	return string(bytes.TrimSpace(v))
}

func (r rawRecord) integer(def int, keys ...string) int {
	s := r.str(keys...)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// boolean accepts true/false, 1/0 and their string forms.
func (r rawRecord) boolean(keys ...string) bool {
	switch strings.ToLower(r.str(keys...)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (r rawRecord) object(keys ...string) rawRecord {
	v, ok := r.lookup(keys...)
	if !ok || v[0] != '{' {
		return nil
	}
	var obj rawRecord
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	return obj
}

func (r rawRecord) id() string { return r.str("id", "_id") }

// nestedID prefers the flat foreign key and falls back to the embedded
// snapshot's id.
func (r rawRecord) nestedID(snapshot string, keys ...string) string {
	if s := r.str(keys...); s != "" {
		return s
	}
	if obj := r.object(snapshot); obj != nil {
		return obj.id()
	}
	return ""
}

func normalizePatient(r rawRecord) Patient {
	return Patient{
		ID:        r.id(),
		Name:      r.str("name", "full_name", "fullName"),
		Email:     r.str("email"),
		Mobile:    r.str("mobile", "phone"),
		City:      r.str("city"),
		Address:   r.str("address"),
		DOB:       r.str("dob", "date_of_birth", "dateOfBirth"),
		Gender:    r.str("gender"),
		CreatedAt: r.str("created_at", "createdAt"),
	}
}

func normalizeHospital(r rawRecord) Hospital {
	status := HospitalStatus(r.str("status"))
	if status == "" {
		status = HospitalPending
	}
	return Hospital{
		ID:        r.id(),
		Name:      r.str("name"),
		Email:     r.str("email"),
		Phone:     r.str("phone", "mobile"),
		Address:   r.str("address"),
		City:      r.str("city"),
		Status:    status,
		CreatedAt: r.str("created_at", "createdAt"),
	}
}

// normalizeVaccine defaults a missing dose count to 1; an explicit zero or
// negative count is kept so the dose engine can reject it.
func normalizeVaccine(r rawRecord) Vaccine {
	return Vaccine{
		ID:            r.id(),
		Name:          r.str("name"),
		Manufacturer:  r.str("manufacturer"),
		DosesRequired: r.integer(1, "doses_required", "dosesRequired"),
		Available:     r.boolean("available", "is_available", "isAvailable"),
	}
}

func normalizeNews(r rawRecord) NewsArticle {
	return NewsArticle{
		ID:        r.id(),
		Title:     r.str("title"),
		Excerpt:   r.str("excerpt"),
		Content:   r.str("content"),
		Image:     r.str("image", "image_url", "imageUrl"),
		Category:  r.str("category"),
		Published: r.boolean("published", "is_published", "isPublished"),
		CreatedAt: r.str("created_at", "createdAt"),
	}
}

func snapshots(r rawRecord) (*Patient, *Hospital) {
	var p *Patient
	if obj := r.object("patient"); obj != nil {
		np := normalizePatient(obj)
		p = &np
	}
	var h *Hospital
	if obj := r.object("hospital"); obj != nil {
		nh := normalizeHospital(obj)
		h = &nh
	}
	return p, h
}

func normalizeAppointment(r rawRecord) Appointment {
	p, h := snapshots(r)
	status := AppointmentStatus(r.str("status"))
	if status == "" {
		status = AppointmentPending
	}
	return Appointment{
		ID:         r.id(),
		PatientID:  r.nestedID("patient", "patient_id", "patientId"),
		HospitalID: r.nestedID("hospital", "hospital_id", "hospitalId"),
		Purpose:    Purpose(r.str("purpose")),
		Date:       r.str("date", "appointment_date", "appointmentDate"),
		Time:       r.str("time", "appointment_time", "appointmentTime"),
		Status:     status,
		CreatedAt:  r.str("created_at", "createdAt"),
		Patient:    p,
		Hospital:   h,
	}
}

func normalizeCovidTest(r rawRecord) CovidTest {
	p, h := snapshots(r)
	result := TestResult(r.str("result"))
	if result == "" {
		result = ResultPending
	}
	return CovidTest{
		ID:            r.id(),
		AppointmentID: r.str("appointment_id", "appointmentId"),
		PatientID:     r.nestedID("patient", "patient_id", "patientId"),
		HospitalID:    r.nestedID("hospital", "hospital_id", "hospitalId"),
		Result:        result,
		TestDate:      r.str("test_date", "testDate"),
		Remarks:       r.str("remarks"),
		FileURL:       r.str("file_url", "fileUrl", "file", "report_file"),
		Patient:       p,
		Hospital:      h,
	}
}

func normalizeVaccination(r rawRecord) Vaccination {
	p, h := snapshots(r)
	var vac *Vaccine
	if obj := r.object("vaccine"); obj != nil {
		nv := normalizeVaccine(obj)
		vac = &nv
	}
	status := VaccinationStatus(r.str("status"))
	if status == "" {
		status = VaccinationScheduled
	}
	return Vaccination{
		ID:              r.id(),
		AppointmentID:   r.str("appointment_id", "appointmentId"),
		PatientID:       r.nestedID("patient", "patient_id", "patientId"),
		HospitalID:      r.nestedID("hospital", "hospital_id", "hospitalId"),
		VaccineID:       r.nestedID("vaccine", "vaccine_id", "vaccineId"),
		DoseNumber:      r.integer(0, "dose_number", "doseNumber"),
		Status:          status,
		VaccinationDate: r.str("vaccination_date", "vaccinationDate"),
		Patient:         p,
		Hospital:        h,
		Vaccine:         vac,
	}
}

func normalizeAll[T any](raws []rawRecord, fn func(rawRecord) T) []T {
	out := make([]T, 0, len(raws))
	for _, r := range raws {
		if r == nil {
			continue
		}
		out = append(out, fn(r))
	}
	return out
}

// Request bodies in the backend's snake_case.

type appointmentBody struct {
	PatientID  string  `json:"patient_id"`
	HospitalID string  `json:"hospital_id"`
	Purpose    Purpose `json:"purpose"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
}

type vaccinationBody struct {
	AppointmentID   string            `json:"appointment_id"`
	PatientID       string            `json:"patient_id"`
	HospitalID      string            `json:"hospital_id"`
	VaccineID       string            `json:"vaccine_id"`
	DoseNumber      int               `json:"dose_number"`
	Status          VaccinationStatus `json:"status"`
	VaccinationDate string            `json:"vaccination_date"`
}

type vaccineBody struct {
	Name          string `json:"name"`
	Manufacturer  string `json:"manufacturer"`
	DosesRequired int    `json:"doses_required"`
	Available     bool   `json:"available"`
}

type newsBody struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Content   string `json:"content"`
	Image     string `json:"image"`
	Category  string `json:"category"`
	Published bool   `json:"published"`
}

type statusBody struct {
	Status string `json:"status"`
}

type availabilityBody struct {
	Available bool `json:"available"`
}

func covidTestFields(in NewCovidTest) map[string]string {
	return map[string]string{
		"appointment_id": in.AppointmentID,
		"patient_id":     in.PatientID,
		"hospital_id":    in.HospitalID,
		"result":         string(in.Result),
		"test_date":      in.TestDate,
		"remarks":        in.Remarks,
	}
}
