package records

import (
	"context"
)

// Backend is the remote portal API. Implementations return records already
// normalized to the shapes in model.go.
type Backend interface {
	ListVaccines(ctx context.Context) ([]Vaccine, error)
	CreateVaccine(ctx context.Context, in VaccineInput) (Vaccine, error)
	UpdateVaccine(ctx context.Context, id string, in VaccineInput) (Vaccine, error)
	DeleteVaccine(ctx context.Context, id string) error
	UpdateVaccineAvailability(ctx context.Context, id string, available bool) error

	ListPublishedNews(ctx context.Context) ([]NewsArticle, error)
	ListNews(ctx context.Context) ([]NewsArticle, error)
	CreateNews(ctx context.Context, in NewsInput) (NewsArticle, error)
	UpdateNews(ctx context.Context, id string, in NewsInput) (NewsArticle, error)
	DeleteNews(ctx context.Context, id string) error

	ListAppointments(ctx context.Context) ([]Appointment, error)
	CreateAppointment(ctx context.Context, in NewAppointment) (Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) error

	ListCovidTests(ctx context.Context) ([]CovidTest, error)
	CreateCovidTest(ctx context.Context, in NewCovidTest) (CovidTest, error)

	ListVaccinations(ctx context.Context) ([]Vaccination, error)
	CreateVaccination(ctx context.Context, in NewVaccination) (Vaccination, error)

	ListPatients(ctx context.Context) ([]Patient, error)
	ListHospitals(ctx context.Context) ([]Hospital, error)
	UpdateHospitalStatus(ctx context.Context, id string, status HospitalStatus) error
}

// DirectoryCache keeps the last good patient and hospital listings so admin
// views still have something to show when the backend is unreachable.
type DirectoryCache interface {
	Save(ctx context.Context, kind string, payload []byte) error
	// Load returns nil, nil when nothing has been cached for kind.
	Load(ctx context.Context, kind string) ([]byte, error)
}

// Change describes one applied mutation of a store collection.
type Change struct {
	Collection string      `json:"collection"`
	Action     string      `json:"action"`
	ID         string      `json:"id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Publisher receives every change applied to the store.
type Publisher interface {
	Publish(ctx context.Context, ch Change) error
}

// Collection names used for change events and directory cache kinds.
const (
	CollectionVaccines     = "vaccines"
	CollectionNews         = "news"
	CollectionAppointments = "appointments"
	CollectionCovidTests   = "covid-tests"
	CollectionVaccinations = "vaccinations"
	CollectionPatients     = "patients"
	CollectionHospitals    = "hospitals"
)

// Change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionLoaded  = "loaded"
	ActionCleared = "cleared"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Change) error { return nil }
