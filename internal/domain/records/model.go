package records

// UnknownName is shown in place of a patient or hospital whose snapshot the
// backend did not embed.
const UnknownName = "Unknown"

type HospitalStatus string

const (
	HospitalPending  HospitalStatus = "Pending"
	HospitalApproved HospitalStatus = "Approved"
	HospitalRejected HospitalStatus = "Rejected"
)

func (s HospitalStatus) Valid() bool {
	return s == HospitalPending || s == HospitalApproved || s == HospitalRejected
}

// CanTransitionTo reports whether an admin may move a registration in status
// s to next. Only Pending registrations are decided.
func (s HospitalStatus) CanTransitionTo(next HospitalStatus) bool {
	return s == HospitalPending && (next == HospitalApproved || next == HospitalRejected)
}

// AppointmentStatus moves Pending -> Approved or Pending -> Rejected and never
// back.
type AppointmentStatus string

const (
	AppointmentPending  AppointmentStatus = "Pending"
	AppointmentApproved AppointmentStatus = "Approved"
	AppointmentRejected AppointmentStatus = "Rejected"
)

func (s AppointmentStatus) Valid() bool {
	return s == AppointmentPending || s == AppointmentApproved || s == AppointmentRejected
}

// CanTransitionTo reports whether an appointment in status s may be moved to
// next by a hospital or admin action.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == AppointmentPending && (next == AppointmentApproved || next == AppointmentRejected)
}

// Terminal reports whether no further status change is possible.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentRejected
}

type Purpose string

const (
	PurposeCovidTest   Purpose = "Covid Test"
	PurposeVaccination Purpose = "Vaccination"
)

func (p Purpose) Valid() bool {
	return p == PurposeCovidTest || p == PurposeVaccination
}

type TestResult string

const (
	ResultPositive TestResult = "Positive"
	ResultNegative TestResult = "Negative"
	ResultPending  TestResult = "Pending"
)

func (r TestResult) Valid() bool {
	return r == ResultPositive || r == ResultNegative || r == ResultPending
}

type VaccinationStatus string

const (
	VaccinationScheduled VaccinationStatus = "Scheduled"
	VaccinationCompleted VaccinationStatus = "Completed"
)

func (s VaccinationStatus) Valid() bool {
	return s == VaccinationScheduled || s == VaccinationCompleted
}

type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile,omitempty"`
	City      string `json:"city,omitempty"`
	Address   string `json:"address,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Gender    string `json:"gender,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Hospital struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Address   string         `json:"address,omitempty"`
	City      string         `json:"city,omitempty"`
	Status    HospitalStatus `json:"status"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

type Vaccine struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Manufacturer  string `json:"manufacturer"`
	DosesRequired int    `json:"dosesRequired"`
	Available     bool   `json:"available"`
}

type Appointment struct {
	ID         string            `json:"id"`
	PatientID  string            `json:"patientId"`
	HospitalID string            `json:"hospitalId"`
	Purpose    Purpose           `json:"purpose"`
	Date       string            `json:"date"`
	Time       string            `json:"time"`
	Status     AppointmentStatus `json:"status"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	Patient    *Patient          `json:"patient,omitempty"`
	Hospital   *Hospital         `json:"hospital,omitempty"`
}

func (a Appointment) PatientName() string  { return patientName(a.Patient) }
func (a Appointment) HospitalName() string { return hospitalName(a.Hospital) }

type CovidTest struct {
	ID            string     `json:"id"`
	AppointmentID string     `json:"appointmentId"`
	PatientID     string     `json:"patientId"`
	HospitalID    string     `json:"hospitalId"`
	Result        TestResult `json:"result"`
	TestDate      string     `json:"testDate"`
	Remarks       string     `json:"remarks,omitempty"`
	FileURL       string     `json:"fileUrl,omitempty"`
	Patient       *Patient   `json:"patient,omitempty"`
	Hospital      *Hospital  `json:"hospital,omitempty"`
}

func (t CovidTest) PatientName() string  { return patientName(t.Patient) }
func (t CovidTest) HospitalName() string { return hospitalName(t.Hospital) }

type Vaccination struct {
	ID              string            `json:"id"`
	AppointmentID   string            `json:"appointmentId"`
	PatientID       string            `json:"patientId"`
	HospitalID      string            `json:"hospitalId"`
	VaccineID       string            `json:"vaccineId"`
	DoseNumber      int               `json:"doseNumber"`
	Status          VaccinationStatus `json:"status"`
	VaccinationDate string            `json:"vaccinationDate"`
	Patient         *Patient          `json:"patient,omitempty"`
	Hospital        *Hospital         `json:"hospital,omitempty"`
	Vaccine         *Vaccine          `json:"vaccine,omitempty"`
}

func (v Vaccination) PatientName() string  { return patientName(v.Patient) }
func (v Vaccination) HospitalName() string { return hospitalName(v.Hospital) }

// Completed reports whether the dose counts toward the vaccine's limit.
func (v Vaccination) Completed() bool { return v.Status == VaccinationCompleted }

type NewsArticle struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt,omitempty"`
	Content   string `json:"content"`
	Image     string `json:"image,omitempty"`
	Category  string `json:"category,omitempty"`
	Published bool   `json:"published"`
	CreatedAt string `json:"created_at,omitempty"`
}

func patientName(p *Patient) string {
	if p == nil || p.Name == "" {
		return UnknownName
	}
	return p.Name
}

func hospitalName(h *Hospital) string {
	if h == nil || h.Name == "" {
		return UnknownName
	}
	return h.Name
}
