package records

// Query methods scan the in-memory collections by exact id match. Results keep
// the store's relative order and are always fresh non-nil slices, so callers
// can neither observe nor cause later mutation of store state.

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func all[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func (s *Store) Vaccines() []Vaccine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return all(s.vaccines)
}

// Vaccine looks a vaccine up by id.
func (s *Store) Vaccine(id string) (Vaccine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.vaccines {
		if v.ID == id {
			return v, true
		}
	}
	return Vaccine{}, false
}

// PublishedNews returns the articles visible on the public site.
func (s *Store) PublishedNews() []NewsArticle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.news, func(n NewsArticle) bool { return n.Published })
}

// AllNews returns every article held, drafts included. Drafts are only present
// after RefreshNews or an admin write.
func (s *Store) AllNews() []NewsArticle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return all(s.news)
}

func (s *Store) PatientAppointments(patientID string) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.appointments, func(a Appointment) bool { return a.PatientID == patientID })
}

func (s *Store) HospitalAppointments(hospitalID string) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.appointments, func(a Appointment) bool { return a.HospitalID == hospitalID })
}

func (s *Store) PatientCovidTests(patientID string) []CovidTest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.covidTests, func(t CovidTest) bool { return t.PatientID == patientID })
}

func (s *Store) HospitalCovidTests(hospitalID string) []CovidTest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.covidTests, func(t CovidTest) bool { return t.HospitalID == hospitalID })
}

func (s *Store) PatientVaccinations(patientID string) []Vaccination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.vaccinations, func(v Vaccination) bool { return v.PatientID == patientID })
}

func (s *Store) HospitalVaccinations(hospitalID string) []Vaccination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.vaccinations, func(v Vaccination) bool { return v.HospitalID == hospitalID })
}

func (s *Store) Patients() []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return all(s.patients)
}

func (s *Store) Hospitals() []Hospital {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return all(s.hospitals)
}

// PatientCertificates returns the certificate standing of patientID for every
// vaccine they have at least one Completed dose of, in vaccine catalogue
// order. Doses of vaccines missing from the catalogue are skipped because
// their required count is unknown. The result is recomputed on every call.
func (s *Store) PatientCertificates(patientID string) []Eligibility {
	completed := filter(s.PatientVaccinations(patientID), Vaccination.Completed)
	seen := make(map[string]bool, len(completed))
	for _, v := range completed {
		seen[v.VaccineID] = true
	}

	out := make([]Eligibility, 0, len(seen))
	for _, vac := range s.Vaccines() {
		if seen[vac.ID] {
			out = append(out, ComputeCertificateEligibility(completed, vac))
		}
	}
	return out
}
