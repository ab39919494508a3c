package records

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidField      = errors.New("invalid field")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVaccineNotFound   = errors.New("vaccine not found")
	ErrInvalidDoseCount  = errors.New("vaccine dose count must be at least 1")
	ErrNoRecordID        = errors.New("backend returned a record without an id")
)

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

var validate = newValidator()

// newValidator reports fields by their JSON names and adds two tags:
// notblank (non-whitespace string) and enum (the field's Valid method).
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		e, ok := fl.Field().Interface().(interface{ Valid() bool })
		return ok && e.Valid()
	})
	return v
}

// check validates in against its struct tags and returns the first failure,
// in field order, as one of the sentinel errors above.
func check(in interface{}) error {
	err := validate.Struct(in)
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return missing(fe.Field())
	case "enum":
		if fe.Field() == "status" {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, fe.Value())
		}
		return fmt.Errorf("%w: %s %q", ErrInvalidField, fe.Field(), fe.Value())
	case "min":
		if fe.Field() == "dosesRequired" {
			return ErrInvalidDoseCount
		}
		return fmt.Errorf("%w: %s must be at least %s, got %v", ErrInvalidField, fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%w: %s", ErrInvalidField, fe.Field())
}

type NewAppointment struct {
	PatientID  string  `json:"patientId" validate:"required,notblank"`
	HospitalID string  `json:"hospitalId" validate:"required,notblank"`
	Purpose    Purpose `json:"purpose" validate:"required,enum"`
	Date       string  `json:"date" validate:"required,notblank"`
	Time       string  `json:"time" validate:"required,notblank"`
}

func (n NewAppointment) Validate() error { return check(n) }

// NewCovidTest is sent as multipart/form-data; File is optional.
type NewCovidTest struct {
	AppointmentID string     `json:"appointmentId" form:"appointmentId" validate:"required,notblank"`
	PatientID     string     `json:"patientId" form:"patientId" validate:"required,notblank"`
	HospitalID    string     `json:"hospitalId" form:"hospitalId" validate:"required,notblank"`
	Result        TestResult `json:"result" form:"result" validate:"required,enum"`
	TestDate      string     `json:"testDate" form:"testDate" validate:"required,notblank"`
	Remarks       string     `json:"remarks,omitempty" form:"remarks"`
	FileName      string     `json:"-" form:"-" validate:"-"`
	File          io.Reader  `json:"-" form:"-" validate:"-"`
}

func (n NewCovidTest) Validate() error { return check(n) }

type NewVaccination struct {
	AppointmentID   string            `json:"appointmentId" validate:"required,notblank"`
	PatientID       string            `json:"patientId" validate:"required,notblank"`
	HospitalID      string            `json:"hospitalId" validate:"required,notblank"`
	VaccineID       string            `json:"vaccineId" validate:"required,notblank"`
	DoseNumber      int               `json:"doseNumber" validate:"min=1"`
	Status          VaccinationStatus `json:"status" validate:"enum"`
	VaccinationDate string            `json:"vaccinationDate" validate:"required,notblank"`
}

func (n NewVaccination) Validate() error { return check(n) }

// RecordDose asks the store to pick the dose number itself.
type RecordDose struct {
	AppointmentID   string            `json:"appointmentId"`
	PatientID       string            `json:"patientId"`
	HospitalID      string            `json:"hospitalId"`
	VaccineID       string            `json:"vaccineId"`
	Status          VaccinationStatus `json:"status"`
	VaccinationDate string            `json:"vaccinationDate"`
}

type VaccineInput struct {
	Name          string `json:"name" validate:"required,notblank"`
	Manufacturer  string `json:"manufacturer" validate:"required,notblank"`
	DosesRequired int    `json:"dosesRequired" validate:"min=1"`
	Available     bool   `json:"available"`
}

func (v VaccineInput) Validate() error { return check(v) }

type NewsInput struct {
	Title     string `json:"title" validate:"required,notblank"`
	Excerpt   string `json:"excerpt"`
	Content   string `json:"content" validate:"required,notblank"`
	Image     string `json:"image"`
	Category  string `json:"category"`
	Published bool   `json:"published"`
}

func (n NewsInput) Validate() error { return check(n) }
