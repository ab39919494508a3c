package records

import (
	"context"
	"fmt"
)

// -- Appointments --

// CreateAppointment validates in, posts it and appends the created record.
// On failure nothing is appended and the backend error is returned.
func (s *Store) CreateAppointment(ctx context.Context, in NewAppointment) (Appointment, error) {
	if err := in.Validate(); err != nil {
		return Appointment{}, err
	}
	gen, err := s.protectedGeneration()
	if err != nil {
		return Appointment{}, err
	}

	appt, err := s.backend.CreateAppointment(ctx, in)
	if err != nil {
		s.logWriteError(err, "create_appointment")
		return Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	if err := s.requireID("create_appointment", appt.ID); err != nil {
		return Appointment{}, err
	}
	if appt.PatientID == "" {
		appt.PatientID = in.PatientID
	}
	if appt.HospitalID == "" {
		appt.HospitalID = in.HospitalID
	}
	if appt.Purpose == "" {
		appt.Purpose = in.Purpose
	}
	if appt.Date == "" {
		appt.Date = in.Date
	}
	if appt.Time == "" {
		appt.Time = in.Time
	}

	s.applyProtected(gen, func() { s.appointments = append(s.appointments, appt) })
	s.publish(ctx, Change{Collection: CollectionAppointments, Action: ActionCreated, ID: appt.ID, Data: appt})
	return appt, nil
}

// UpdateAppointmentStatus approves or rejects an appointment. Only the status
// field of the local copy is patched. A locally known appointment that has
// already left Pending is refused without calling the backend.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) error {
	if status != AppointmentApproved && status != AppointmentRejected {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if cur, ok := s.appointmentStatus(id); ok && !cur.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, status)
	}
	gen, err := s.protectedGeneration()
	if err != nil {
		return err
	}

	if err = s.backend.UpdateAppointmentStatus(ctx, id, status); err != nil {
		s.logWriteError(err, "update_appointment_status")
		return fmt.Errorf("update appointment %s status: %w", id, err)
	}

	s.applyProtected(gen, func() {
		for i := range s.appointments {
			// re-checked under the lock so a concurrent decision is never overwritten
			if s.appointments[i].ID == id && s.appointments[i].Status.CanTransitionTo(status) {
				s.appointments[i].Status = status
			}
		}
	})
	s.publish(ctx, Change{Collection: CollectionAppointments, Action: ActionUpdated, ID: id, Data: map[string]string{"status": string(status)}})
	return nil
}

func (s *Store) appointmentStatus(id string) (AppointmentStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.ID == id {
			return a.Status, true
		}
	}
	return "", false
}

// -- Covid tests --

// AddCovidTest uploads a test result. If the backend answers with the id of a
// record already held locally, that record is replaced instead of duplicated.
func (s *Store) AddCovidTest(ctx context.Context, in NewCovidTest) (CovidTest, error) {
	return s.submitCovidTest(ctx, "add_covid_test", in)
}

// UpdateCovidTestResult is the "update result" path. The backend exposes no
// separate update call, so this issues the same create request as
// AddCovidTest and keeps whatever record the backend returns.
func (s *Store) UpdateCovidTestResult(ctx context.Context, in NewCovidTest) (CovidTest, error) {
	return s.submitCovidTest(ctx, "update_covid_test_result", in)
}

func (s *Store) submitCovidTest(ctx context.Context, op string, in NewCovidTest) (CovidTest, error) {
	if err := in.Validate(); err != nil {
		return CovidTest{}, err
	}
	gen, err := s.protectedGeneration()
	if err != nil {
		return CovidTest{}, err
	}

	test, err := s.backend.CreateCovidTest(ctx, in)
	if err != nil {
		s.logWriteError(err, op)
		return CovidTest{}, fmt.Errorf("submit covid test: %w", err)
	}
	if err := s.requireID(op, test.ID); err != nil {
		return CovidTest{}, err
	}
	if test.AppointmentID == "" {
		test.AppointmentID = in.AppointmentID
	}
	if test.PatientID == "" {
		test.PatientID = in.PatientID
	}
	if test.HospitalID == "" {
		test.HospitalID = in.HospitalID
	}

	action := ActionCreated
	s.applyProtected(gen, func() {
		for i := range s.covidTests {
			if s.covidTests[i].ID == test.ID {
				s.covidTests[i] = test
				action = ActionUpdated
				return
			}
		}
		s.covidTests = append(s.covidTests, test)
	})
	s.publish(ctx, Change{Collection: CollectionCovidTests, Action: action, ID: test.ID, Data: test})
	return test, nil
}

// -- Vaccinations --

// AddVaccination records a dose. A Completed dose must carry the next dose
// number for its patient and vaccine; past the vaccine's required count a
// *DoseLimitError is returned without calling the backend.
func (s *Store) AddVaccination(ctx context.Context, in NewVaccination) (Vaccination, error) {
	if in.Status == "" {
		in.Status = VaccinationCompleted
	}
	if err := in.Validate(); err != nil {
		return Vaccination{}, err
	}
	if !s.Authenticated() {
		return Vaccination{}, ErrNotAuthenticated
	}
	if in.Status != VaccinationCompleted {
		return s.createVaccination(ctx, in)
	}

	unlock := s.doseLocks.lock(doseKey(in.PatientID, in.VaccineID))
	defer unlock()

	check, err := s.nextDose(in.PatientID, in.VaccineID)
	if err != nil {
		return Vaccination{}, err
	}
	if in.DoseNumber != check.NextDose {
		return Vaccination{}, fmt.Errorf("%w: doseNumber must be %d, got %d", ErrInvalidField, check.NextDose, in.DoseNumber)
	}
	return s.createVaccination(ctx, in)
}

// RecordVaccination computes the next dose for the patient and vaccine and
// records it. A *DoseLimitError is returned, without calling the backend, when
// every required dose has already been given. Calls for the same patient and
// vaccine are serialized with AddVaccination so two operators in this process
// cannot both pass the check.
func (s *Store) RecordVaccination(ctx context.Context, in RecordDose) (Vaccination, DoseCheck, error) {
	nv := NewVaccination{
		AppointmentID:   in.AppointmentID,
		PatientID:       in.PatientID,
		HospitalID:      in.HospitalID,
		VaccineID:       in.VaccineID,
		DoseNumber:      1,
		Status:          in.Status,
		VaccinationDate: in.VaccinationDate,
	}
	if nv.Status == "" {
		nv.Status = VaccinationCompleted
	}
	if err := nv.Validate(); err != nil {
		return Vaccination{}, DoseCheck{}, err
	}
	if !s.Authenticated() {
		return Vaccination{}, DoseCheck{}, ErrNotAuthenticated
	}

	unlock := s.doseLocks.lock(doseKey(in.PatientID, in.VaccineID))
	defer unlock()

	check, err := s.nextDose(in.PatientID, in.VaccineID)
	if err != nil {
		return Vaccination{}, DoseCheck{}, err
	}
	nv.DoseNumber = check.NextDose

	v, err := s.createVaccination(ctx, nv)
	if err != nil {
		return Vaccination{}, check, err
	}
	return v, check, nil
}

func doseKey(patientID, vaccineID string) string {
	return patientID + "\x00" + vaccineID
}

// nextDose runs ComputeNextDose against the catalogue entry and the locally
// held vaccinations. Callers hold the dose lock for the pair.
func (s *Store) nextDose(patientID, vaccineID string) (DoseCheck, error) {
	vaccine, ok := s.Vaccine(vaccineID)
	if !ok {
		return DoseCheck{}, fmt.Errorf("%w: %s", ErrVaccineNotFound, vaccineID)
	}
	return ComputeNextDose(patientID, vaccineID, s.PatientVaccinations(patientID), vaccine)
}

// createVaccination posts an already validated dose and appends the result.
func (s *Store) createVaccination(ctx context.Context, in NewVaccination) (Vaccination, error) {
	gen, err := s.protectedGeneration()
	if err != nil {
		return Vaccination{}, err
	}

	v, err := s.backend.CreateVaccination(ctx, in)
	if err != nil {
		s.logWriteError(err, "add_vaccination")
		return Vaccination{}, fmt.Errorf("add vaccination: %w", err)
	}
	if err := s.requireID("add_vaccination", v.ID); err != nil {
		return Vaccination{}, err
	}
	if v.PatientID == "" {
		v.PatientID = in.PatientID
	}
	if v.HospitalID == "" {
		v.HospitalID = in.HospitalID
	}
	if v.VaccineID == "" {
		v.VaccineID = in.VaccineID
	}
	if v.AppointmentID == "" {
		v.AppointmentID = in.AppointmentID
	}
	if v.DoseNumber == 0 {
		v.DoseNumber = in.DoseNumber
	}
	if v.Status == "" {
		v.Status = in.Status
	}

	s.applyProtected(gen, func() { s.vaccinations = append(s.vaccinations, v) })
	s.publish(ctx, Change{Collection: CollectionVaccinations, Action: ActionCreated, ID: v.ID, Data: v})
	return v, nil
}

// -- Vaccines --

func (s *Store) AddVaccine(ctx context.Context, in VaccineInput) (Vaccine, error) {
	if err := in.Validate(); err != nil {
		return Vaccine{}, err
	}
	v, err := s.backend.CreateVaccine(ctx, in)
	if err != nil {
		s.logWriteError(err, "add_vaccine")
		return Vaccine{}, fmt.Errorf("add vaccine: %w", err)
	}
	if err := s.requireID("add_vaccine", v.ID); err != nil {
		return Vaccine{}, err
	}

	s.mu.Lock()
	s.vaccines = append(s.vaccines, v)
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionVaccines, Action: ActionCreated, ID: v.ID, Data: v})
	return v, nil
}

func (s *Store) UpdateVaccine(ctx context.Context, id string, in VaccineInput) (Vaccine, error) {
	if err := in.Validate(); err != nil {
		return Vaccine{}, err
	}
	v, err := s.backend.UpdateVaccine(ctx, id, in)
	if err != nil {
		s.logWriteError(err, "update_vaccine")
		return Vaccine{}, fmt.Errorf("update vaccine %s: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.vaccines {
		if s.vaccines[i].ID == id {
			s.vaccines[i] = v
		}
	}
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionVaccines, Action: ActionUpdated, ID: id, Data: v})
	return v, nil
}

func (s *Store) DeleteVaccine(ctx context.Context, id string) error {
	if err := s.backend.DeleteVaccine(ctx, id); err != nil {
		s.logWriteError(err, "delete_vaccine")
		return fmt.Errorf("delete vaccine %s: %w", id, err)
	}

	s.mu.Lock()
	s.vaccines = without(s.vaccines, func(v Vaccine) bool { return v.ID == id })
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionVaccines, Action: ActionDeleted, ID: id})
	return nil
}

func (s *Store) UpdateVaccineAvailability(ctx context.Context, id string, available bool) error {
	if err := s.backend.UpdateVaccineAvailability(ctx, id, available); err != nil {
		s.logWriteError(err, "update_vaccine_availability")
		return fmt.Errorf("update vaccine %s availability: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.vaccines {
		if s.vaccines[i].ID == id {
			s.vaccines[i].Available = available
		}
	}
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionVaccines, Action: ActionUpdated, ID: id, Data: map[string]bool{"available": available}})
	return nil
}

// -- News --

func (s *Store) AddNews(ctx context.Context, in NewsInput) (NewsArticle, error) {
	if err := in.Validate(); err != nil {
		return NewsArticle{}, err
	}
	n, err := s.backend.CreateNews(ctx, in)
	if err != nil {
		s.logWriteError(err, "add_news")
		return NewsArticle{}, fmt.Errorf("add news: %w", err)
	}
	if err := s.requireID("add_news", n.ID); err != nil {
		return NewsArticle{}, err
	}

	s.mu.Lock()
	s.news = append(s.news, n)
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionNews, Action: ActionCreated, ID: n.ID, Data: n})
	return n, nil
}

func (s *Store) UpdateNews(ctx context.Context, id string, in NewsInput) (NewsArticle, error) {
	if err := in.Validate(); err != nil {
		return NewsArticle{}, err
	}
	n, err := s.backend.UpdateNews(ctx, id, in)
	if err != nil {
		s.logWriteError(err, "update_news")
		return NewsArticle{}, fmt.Errorf("update news %s: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.news {
		if s.news[i].ID == id {
			s.news[i] = n
		}
	}
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionNews, Action: ActionUpdated, ID: id, Data: n})
	return n, nil
}

func (s *Store) DeleteNews(ctx context.Context, id string) error {
	if err := s.backend.DeleteNews(ctx, id); err != nil {
		s.logWriteError(err, "delete_news")
		return fmt.Errorf("delete news %s: %w", id, err)
	}

	s.mu.Lock()
	s.news = without(s.news, func(n NewsArticle) bool { return n.ID == id })
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionNews, Action: ActionDeleted, ID: id})
	return nil
}

// RefreshNews reloads every article, published or not, for the admin list.
// Failures are logged and the current list is kept.
func (s *Store) RefreshNews(ctx context.Context) {
	news, err := s.backend.ListNews(ctx)
	if err != nil {
		s.logReadError(err, "refresh_news", CollectionNews)
		return
	}
	s.mu.Lock()
	s.news = news
	s.mu.Unlock()
	s.publish(ctx, Change{Collection: CollectionNews, Action: ActionLoaded})
}

// requireID refuses a created record the backend answered without an id.
func (s *Store) requireID(op, id string) error {
	if id != "" {
		return nil
	}
	err := fmt.Errorf("%s: %w", op, ErrNoRecordID)
	s.logWriteError(err, op)
	return err
}

func without[T any](items []T, drop func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if !drop(it) {
			out = append(out, it)
		}
	}
	return out
}
