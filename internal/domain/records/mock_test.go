package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// =========== Mock Backend ===========

type mockBackend struct {
	mu     sync.Mutex
	nextID int

	vaccines     []Vaccine
	news         []NewsArticle
	appointments []Appointment
	covidTests   []CovidTest
	vaccinations []Vaccination
	patients     []Patient
	hospitals    []Hospital

	// errs forces the named method to fail.
	errs  map[string]error
	calls map[string]int

	// covidTestID, when set, is the id the next CreateCovidTest answers with.
	covidTestID string
	// omitIDs makes every Create answer with a record that has no id.
	omitIDs bool
	// beforeList runs at the start of every List call, outside the lock.
	beforeList func(method string)
}

func newMockBackend() *mockBackend {
	return &mockBackend{errs: map[string]error{}, calls: map[string]int{}}
}

func (m *mockBackend) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.errs[method]
}

func (m *mockBackend) list(method string) error {
	if m.beforeList != nil {
		m.beforeList(method)
	}
	return m.record(method)
}

func (m *mockBackend) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockBackend) fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
}

func (m *mockBackend) newID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.omitIDs {
		return ""
	}
	m.nextID++
	return strconv.Itoa(m.nextID)
}

func (m *mockBackend) ListVaccines(context.Context) ([]Vaccine, error) {
	if err := m.list("ListVaccines"); err != nil {
		return nil, err
	}
	return append([]Vaccine(nil), m.vaccines...), nil
}

func (m *mockBackend) CreateVaccine(_ context.Context, in VaccineInput) (Vaccine, error) {
	if err := m.record("CreateVaccine"); err != nil {
		return Vaccine{}, err
	}
	return Vaccine{ID: m.newID(), Name: in.Name, Manufacturer: in.Manufacturer, DosesRequired: in.DosesRequired, Available: in.Available}, nil
}

func (m *mockBackend) UpdateVaccine(_ context.Context, id string, in VaccineInput) (Vaccine, error) {
	if err := m.record("UpdateVaccine"); err != nil {
		return Vaccine{}, err
	}
	return Vaccine{ID: id, Name: in.Name, Manufacturer: in.Manufacturer, DosesRequired: in.DosesRequired, Available: in.Available}, nil
}

func (m *mockBackend) DeleteVaccine(context.Context, string) error {
	return m.record("DeleteVaccine")
}

func (m *mockBackend) UpdateVaccineAvailability(context.Context, string, bool) error {
	return m.record("UpdateVaccineAvailability")
}

func (m *mockBackend) ListPublishedNews(context.Context) ([]NewsArticle, error) {
	if err := m.list("ListPublishedNews"); err != nil {
		return nil, err
	}
	var out []NewsArticle
	for _, n := range m.news {
		if n.Published {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockBackend) ListNews(context.Context) ([]NewsArticle, error) {
	if err := m.list("ListNews"); err != nil {
		return nil, err
	}
	return append([]NewsArticle(nil), m.news...), nil
}

func (m *mockBackend) CreateNews(_ context.Context, in NewsInput) (NewsArticle, error) {
	if err := m.record("CreateNews"); err != nil {
		return NewsArticle{}, err
	}
	return NewsArticle{ID: m.newID(), Title: in.Title, Content: in.Content, Published: in.Published}, nil
}

func (m *mockBackend) UpdateNews(_ context.Context, id string, in NewsInput) (NewsArticle, error) {
	if err := m.record("UpdateNews"); err != nil {
		return NewsArticle{}, err
	}
	return NewsArticle{ID: id, Title: in.Title, Content: in.Content, Published: in.Published}, nil
}

func (m *mockBackend) DeleteNews(context.Context, string) error {
	return m.record("DeleteNews")
}

func (m *mockBackend) ListAppointments(context.Context) ([]Appointment, error) {
	if err := m.list("ListAppointments"); err != nil {
		return nil, err
	}
	return append([]Appointment(nil), m.appointments...), nil
}

// CreateAppointment answers with only an id so the store has to fill the rest
// from the request.
func (m *mockBackend) CreateAppointment(context.Context, NewAppointment) (Appointment, error) {
	if err := m.record("CreateAppointment"); err != nil {
		return Appointment{}, err
	}
	return Appointment{ID: m.newID(), Status: AppointmentPending}, nil
}

func (m *mockBackend) UpdateAppointmentStatus(context.Context, string, AppointmentStatus) error {
	return m.record("UpdateAppointmentStatus")
}

func (m *mockBackend) ListCovidTests(context.Context) ([]CovidTest, error) {
	if err := m.list("ListCovidTests"); err != nil {
		return nil, err
	}
	return append([]CovidTest(nil), m.covidTests...), nil
}

func (m *mockBackend) CreateCovidTest(_ context.Context, in NewCovidTest) (CovidTest, error) {
	if err := m.record("CreateCovidTest"); err != nil {
		return CovidTest{}, err
	}
	id := m.covidTestID
	if id == "" || m.omitIDs {
		id = m.newID()
	}
	return CovidTest{ID: id, Result: in.Result, TestDate: in.TestDate, Remarks: in.Remarks}, nil
}

func (m *mockBackend) ListVaccinations(context.Context) ([]Vaccination, error) {
	if err := m.list("ListVaccinations"); err != nil {
		return nil, err
	}
	return append([]Vaccination(nil), m.vaccinations...), nil
}

func (m *mockBackend) CreateVaccination(_ context.Context, in NewVaccination) (Vaccination, error) {
	if err := m.record("CreateVaccination"); err != nil {
		return Vaccination{}, err
	}
	return Vaccination{ID: m.newID(), Status: in.Status, VaccinationDate: in.VaccinationDate}, nil
}

func (m *mockBackend) ListPatients(context.Context) ([]Patient, error) {
	if err := m.list("ListPatients"); err != nil {
		return nil, err
	}
	return append([]Patient(nil), m.patients...), nil
}

func (m *mockBackend) ListHospitals(context.Context) ([]Hospital, error) {
	if err := m.list("ListHospitals"); err != nil {
		return nil, err
	}
	return append([]Hospital(nil), m.hospitals...), nil
}

func (m *mockBackend) UpdateHospitalStatus(context.Context, string, HospitalStatus) error {
	return m.record("UpdateHospitalStatus")
}

// =========== Mock Publisher & Cache ===========

type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
}

func (p *recordingPublisher) Publish(_ context.Context, ch Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, ch)
	return nil
}

func (p *recordingPublisher) count(collection, action string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ch := range p.changes {
		if ch.Collection == collection && ch.Action == action {
			n++
		}
	}
	return n
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	loadErr error
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Save(_ context.Context, kind string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = append([]byte(nil), payload...)
	return nil
}

func (c *mapCache) Load(_ context.Context, kind string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.entries[kind], nil
}

func (c *mapCache) put(kind string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %s: %v", kind, err))
	}
	c.entries[kind] = b
}

// =========== Helpers ===========

func newTestStore(b *mockBackend) (*Store, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewStore(b, nil, pub, zerolog.Nop()), pub
}

// signedInStore returns a store that has already completed its sign-in fetch.
func signedInStore(b *mockBackend) (*Store, *recordingPublisher) {
	s, pub := newTestStore(b)
	s.OnAuthChange(context.Background(), true)
	return s, pub
}

var errBackendDown = fmt.Errorf("backend down")
