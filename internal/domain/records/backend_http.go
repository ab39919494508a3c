package records

import (
	"context"
	"net/url"

	"github.com/vaxportal/portal/internal/platform/apiclient"
)

// HTTPBackend is the Backend served by the remote REST API.
type HTTPBackend struct {
	c *apiclient.Client
}

func NewHTTPBackend(c *apiclient.Client) *HTTPBackend {
	return &HTTPBackend{c: c}
}

func idPath(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}

func (b *HTTPBackend) list(ctx context.Context, path string) ([]rawRecord, error) {
	var raws []rawRecord
	if err := b.c.Get(ctx, path, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// -- Vaccines --

func (b *HTTPBackend) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	raws, err := b.list(ctx, "/vaccines")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeVaccine), nil
}

func (b *HTTPBackend) CreateVaccine(ctx context.Context, in VaccineInput) (Vaccine, error) {
	var raw rawRecord
	if err := b.c.Post(ctx, "/vaccines", vaccineBody(in), &raw); err != nil {
		return Vaccine{}, err
	}
	return normalizeVaccine(raw), nil
}

func (b *HTTPBackend) UpdateVaccine(ctx context.Context, id string, in VaccineInput) (Vaccine, error) {
	var raw rawRecord
	if err := b.c.Put(ctx, idPath("/vaccines", id), vaccineBody(in), &raw); err != nil {
		return Vaccine{}, err
	}
	if raw.id() == "" {
		return Vaccine{ID: id, Name: in.Name, Manufacturer: in.Manufacturer, DosesRequired: in.DosesRequired, Available: in.Available}, nil
	}
	return normalizeVaccine(raw), nil
}

func (b *HTTPBackend) DeleteVaccine(ctx context.Context, id string) error {
	return b.c.Delete(ctx, idPath("/vaccines", id), nil)
}

func (b *HTTPBackend) UpdateVaccineAvailability(ctx context.Context, id string, available bool) error {
	return b.c.Put(ctx, idPath("/vaccines", id)+"/availability", availabilityBody{Available: available}, nil)
}

// -- News --

func (b *HTTPBackend) ListPublishedNews(ctx context.Context) ([]NewsArticle, error) {
	raws, err := b.list(ctx, "/news/published")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeNews), nil
}

func (b *HTTPBackend) ListNews(ctx context.Context) ([]NewsArticle, error) {
	raws, err := b.list(ctx, "/news")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeNews), nil
}

func (b *HTTPBackend) CreateNews(ctx context.Context, in NewsInput) (NewsArticle, error) {
	var raw rawRecord
	if err := b.c.Post(ctx, "/news", newsBody(in), &raw); err != nil {
		return NewsArticle{}, err
	}
	return normalizeNews(raw), nil
}

func (b *HTTPBackend) UpdateNews(ctx context.Context, id string, in NewsInput) (NewsArticle, error) {
	var raw rawRecord
	if err := b.c.Put(ctx, idPath("/news", id), newsBody(in), &raw); err != nil {
		return NewsArticle{}, err
	}
	if raw.id() == "" {
		return NewsArticle{
			ID: id, Title: in.Title, Excerpt: in.Excerpt, Content: in.Content,
			Image: in.Image, Category: in.Category, Published: in.Published,
		}, nil
	}
	return normalizeNews(raw), nil
}

func (b *HTTPBackend) DeleteNews(ctx context.Context, id string) error {
	return b.c.Delete(ctx, idPath("/news", id), nil)
}

// -- Appointments --

func (b *HTTPBackend) ListAppointments(ctx context.Context) ([]Appointment, error) {
	raws, err := b.list(ctx, "/appointments")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeAppointment), nil
}

func (b *HTTPBackend) CreateAppointment(ctx context.Context, in NewAppointment) (Appointment, error) {
	var raw rawRecord
	body := appointmentBody{
		PatientID: in.PatientID, HospitalID: in.HospitalID,
		Purpose: in.Purpose, Date: in.Date, Time: in.Time,
	}
	if err := b.c.Post(ctx, "/appointments", body, &raw); err != nil {
		return Appointment{}, err
	}
	return normalizeAppointment(raw), nil
}

func (b *HTTPBackend) UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) error {
	return b.c.Put(ctx, idPath("/appointments", id)+"/status", statusBody{Status: string(status)}, nil)
}

// -- Covid tests --

func (b *HTTPBackend) ListCovidTests(ctx context.Context) ([]CovidTest, error) {
	raws, err := b.list(ctx, "/covid-tests")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeCovidTest), nil
}

func (b *HTTPBackend) CreateCovidTest(ctx context.Context, in NewCovidTest) (CovidTest, error) {
	var file *apiclient.File
	if in.File != nil {
		file = &apiclient.File{FieldName: "file", FileName: in.FileName, Content: in.File}
	}
	var raw rawRecord
	if err := b.c.PostMultipart(ctx, "/covid-tests", covidTestFields(in), file, &raw); err != nil {
		return CovidTest{}, err
	}
	return normalizeCovidTest(raw), nil
}

// -- Vaccinations --

func (b *HTTPBackend) ListVaccinations(ctx context.Context) ([]Vaccination, error) {
	raws, err := b.list(ctx, "/vaccinations")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeVaccination), nil
}

func (b *HTTPBackend) CreateVaccination(ctx context.Context, in NewVaccination) (Vaccination, error) {
	var raw rawRecord
	if err := b.c.Post(ctx, "/vaccinations", vaccinationBody(in), &raw); err != nil {
		return Vaccination{}, err
	}
	return normalizeVaccination(raw), nil
}

// -- Directory --

func (b *HTTPBackend) ListPatients(ctx context.Context) ([]Patient, error) {
	raws, err := b.list(ctx, "/patients")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizePatient), nil
}

func (b *HTTPBackend) ListHospitals(ctx context.Context) ([]Hospital, error) {
	raws, err := b.list(ctx, "/hospitals")
	if err != nil {
		return nil, err
	}
	return normalizeAll(raws, normalizeHospital), nil
}

func (b *HTTPBackend) UpdateHospitalStatus(ctx context.Context, id string, status HospitalStatus) error {
	return b.c.Put(ctx, idPath("/hospitals", id)+"/status", statusBody{Status: string(status)}, nil)
}
