package records

import (
	"fmt"
)

// DoseLimitError reports an attempt to record a dose beyond the vaccine's
// required dose count. It is returned before any network call is made.
type DoseLimitError struct {
	VaccineID     string `json:"vaccineId"`
	VaccineName   string `json:"vaccineName"`
	MaxDoses      int    `json:"maxDoses"`
	ExistingDoses int    `json:"existingDoses"`
}

func (e *DoseLimitError) Error() string {
	return fmt.Sprintf("%s requires only %d dose(s); %d already administered",
		e.VaccineName, e.MaxDoses, e.ExistingDoses)
}

// DoseCheck is the outcome of a successful next-dose computation.
type DoseCheck struct {
	PatientID     string `json:"patientId"`
	VaccineID     string `json:"vaccineId"`
	ExistingDoses int    `json:"existingDoses"`
	NextDose      int    `json:"nextDose"`
	MaxDoses      int    `json:"maxDoses"`
}

// CountCompletedDoses counts Completed vaccinations of vaccineID for patientID.
func CountCompletedDoses(patientID, vaccineID string, vaccinations []Vaccination) int {
	n := 0
	for _, v := range vaccinations {
		if v.PatientID == patientID && v.VaccineID == vaccineID && v.Completed() {
			n++
		}
	}
	return n
}

// ComputeNextDose returns the dose number the next vaccination of vaccine for
// patientID must carry. When the patient already has every required dose it
// returns a *DoseLimitError and a zero DoseCheck.
func ComputeNextDose(patientID, vaccineID string, vaccinations []Vaccination, vaccine Vaccine) (DoseCheck, error) {
	if vaccine.DosesRequired < 1 {
		return DoseCheck{}, fmt.Errorf("%w: %s has %d", ErrInvalidDoseCount, vaccine.Name, vaccine.DosesRequired)
	}

	existing := CountCompletedDoses(patientID, vaccineID, vaccinations)
	next := existing + 1
	if next > vaccine.DosesRequired {
		return DoseCheck{}, &DoseLimitError{
			VaccineID:     vaccineID,
			VaccineName:   vaccine.Name,
			MaxDoses:      vaccine.DosesRequired,
			ExistingDoses: existing,
		}
	}

	return DoseCheck{
		PatientID:     patientID,
		VaccineID:     vaccineID,
		ExistingDoses: existing,
		NextDose:      next,
		MaxDoses:      vaccine.DosesRequired,
	}, nil
}

// Eligibility is a patient's certificate standing for one vaccine.
type Eligibility struct {
	VaccineID       string `json:"vaccineId"`
	VaccineName     string `json:"vaccineName"`
	CompletedDoses  int    `json:"completedDoses"`
	DosesRequired   int    `json:"dosesRequired"`
	DosesRemaining  int    `json:"dosesRemaining"`
	FullyVaccinated bool   `json:"fullyVaccinated"`
}

// ComputeCertificateEligibility counts the Completed records for vaccine in
// completed. It is a pure function of its inputs and must be recomputed
// whenever the vaccination list may have changed.
func ComputeCertificateEligibility(completed []Vaccination, vaccine Vaccine) Eligibility {
	count := 0
	for _, v := range completed {
		if v.VaccineID == vaccine.ID && v.Completed() {
			count++
		}
	}
	remaining := vaccine.DosesRequired - count
	if remaining < 0 {
		remaining = 0
	}
	return Eligibility{
		VaccineID:       vaccine.ID,
		VaccineName:     vaccine.Name,
		CompletedDoses:  count,
		DosesRequired:   vaccine.DosesRequired,
		DosesRemaining:  remaining,
		FullyVaccinated: vaccine.DosesRequired >= 1 && count >= vaccine.DosesRequired,
	}
}
