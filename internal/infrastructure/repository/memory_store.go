package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

var (
	_ interfaces.Store           = (*MemoryStore)(nil)
	_ interfaces.OccupancyReader = (*MemoryStore)(nil)
)

type memoryData struct {
	sessions      map[uuid.UUID]*domain.LabSession
	slots         map[uuid.UUID]*domain.TimeSlot
	registrations map[uuid.UUID]*domain.Registration
	attendance    map[uuid.UUID]*domain.Attendance
	students      map[uuid.UUID]*domain.Student
	courses       map[uuid.UUID]*domain.Course
	programs      map[uuid.UUID]*domain.Program
}

func newMemoryData() *memoryData {
	return &memoryData{
		sessions:      make(map[uuid.UUID]*domain.LabSession),
		slots:         make(map[uuid.UUID]*domain.TimeSlot),
		registrations: make(map[uuid.UUID]*domain.Registration),
		attendance:    make(map[uuid.UUID]*domain.Attendance),
		students:      make(map[uuid.UUID]*domain.Student),
		courses:       make(map[uuid.UUID]*domain.Course),
		programs:      make(map[uuid.UUID]*domain.Program),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for id, s := range d.sessions {
		c.sessions[id] = copySession(s)
	}
	for id, s := range d.slots {
		c.slots[id] = copySlot(s)
	}
	for id, r := range d.registrations {
		c.registrations[id] = copyRegistration(r)
	}
	for id, a := range d.attendance {
		c.attendance[id] = copyAttendance(a)
	}
	for id, s := range d.students {
		student := *s
		c.students[id] = &student
	}
	for id, course := range d.courses {
		c.courses[id] = course
	}
	for id, p := range d.programs {
		c.programs[id] = p
	}
	return c
}

// MemoryStore is an in-memory Store for tests and the memory storage driver.
// Transactions are serialized and roll back by restoring a snapshot.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData(), now: time.Now}
}

// SeedCourse adds catalog reference data
func (s *MemoryStore) SeedCourse(course *domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.courses[course.CourseID] = course
}

// SeedProgram adds catalog reference data
func (s *MemoryStore) SeedProgram(program *domain.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.programs[program.ProgramID] = program
}

func (s *MemoryStore) Repos() interfaces.Repositories {
	return s.repos(false)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(repos interfaces.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(s.repos(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// SessionOccupancy groups slot counters per date
func (s *MemoryStore) SessionOccupancy(ctx context.Context, sessionID uuid.UUID) ([]interfaces.OccupancyRow, error) {
	slots, err := s.Repos().Slots.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows := []interfaces.OccupancyRow{}
	for _, slot := range slots {
		if n := len(rows); n == 0 || !rows[n-1].SessionDate.Equal(slot.SessionDate) {
			rows = append(rows, interfaces.OccupancyRow{SessionDate: slot.SessionDate})
		}
		row := &rows[len(rows)-1]
		row.Slots++
		row.Capacity += slot.MaxStudents
		row.Registered += slot.CurrentCount
	}
	return rows, nil
}

func (s *MemoryStore) repos(inTx bool) interfaces.Repositories {
	base := memoryRepo{store: s, inTx: inTx}
	return interfaces.Repositories{
		Sessions:      &memorySessionRepository{base},
		Slots:         &memorySlotRepository{base},
		Registrations: &memoryRegistrationRepository{base},
		Attendance:    &memoryAttendanceRepository{base},
		Students:      &memoryStudentRepository{base},
		Catalog:       &memoryCatalogRepository{base},
	}
}

type memoryRepo struct {
	store *MemoryStore
	inTx  bool
}

// lock takes the store mutex unless the caller already holds it through WithinTx
func (r memoryRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r memoryRepo) data() *memoryData {
	return r.store.data
}

type memorySessionRepository struct{ memoryRepo }

func (r *memorySessionRepository) Create(ctx context.Context, session *domain.LabSession) error {
	defer r.lock()()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := r.store.now()
	session.CreatedAt, session.UpdatedAt = now, now
	r.data().sessions[session.ID] = copySession(session)
	return nil
}

func (r *memorySessionRepository) Update(ctx context.Context, session *domain.LabSession) error {
	defer r.lock()()
	session.UpdatedAt = r.store.now()
	r.data().sessions[session.ID] = copySession(session)
	return nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()
	d := r.data()
	delete(d.sessions, id)
	for regID, reg := range d.registrations {
		if reg.LabSessionID == id {
			delete(d.registrations, regID)
		}
	}
	for attendanceID, a := range d.attendance {
		if _, ok := d.registrations[a.RegistrationID]; !ok {
			delete(d.attendance, attendanceID)
		}
	}
	return nil
}

func (r *memorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LabSession, error) {
	defer r.lock()()
	if s, ok := r.data().sessions[id]; ok {
		return copySession(s), nil
	}
	return nil, nil
}

func (r *memorySessionRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LabSession, error) {
	return r.GetByID(ctx, id)
}

func (r *memorySessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]*domain.LabSession, error) {
	defer r.lock()()
	var out []*domain.LabSession
	for _, s := range r.data().sessions {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.CourseID != nil && s.CourseID != *filter.CourseID {
			continue
		}
		if filter.EndsOnOrAfter != nil && domain.DateOf(s.EndDate).Before(domain.DateOf(*filter.EndsOnOrAfter)) {
			continue
		}
		if filter.ProgramID != nil && !domain.ProgramEligible(s, filter.ProgramID) {
			continue
		}
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *memorySessionRepository) FindByRoomInRange(ctx context.Context, room string, from, to time.Time) ([]*domain.LabSession, error) {
	defer r.lock()()
	var out []*domain.LabSession
	for _, s := range r.data().sessions {
		if s.Room != room || s.Status == domain.SessionCancelled {
			continue
		}
		if s.StartDate.After(to) || s.EndDate.Before(from) {
			continue
		}
		out = append(out, copySession(s))
	}
	return out, nil
}

// LockRoom is a no-op; WithinTx already serializes writers
func (r *memorySessionRepository) LockRoom(ctx context.Context, room string) error {
	return nil
}

func (r *memorySessionRepository) FindExpiredOpen(ctx context.Context, today time.Time) ([]*domain.LabSession, error) {
	defer r.lock()()
	var out []*domain.LabSession
	for _, s := range r.data().sessions {
		if s.Status == domain.SessionOpen && domain.DateOf(s.EndDate).Before(domain.DateOf(today)) {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

type memorySlotRepository struct{ memoryRepo }

func (r *memorySlotRepository) CreateBatch(ctx context.Context, slots []*domain.TimeSlot) error {
	defer r.lock()()
	for _, slot := range slots {
		if slot.ID == uuid.Nil {
			slot.ID = uuid.New()
		}
		r.data().slots[slot.ID] = copySlot(slot)
	}
	return nil
}

func (r *memorySlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TimeSlot, error) {
	defer r.lock()()
	if slot, ok := r.data().slots[id]; ok {
		return copySlot(slot), nil
	}
	return nil, nil
}

func (r *memorySlotRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	defer r.lock()()
	return r.filter(sessionID, func(*domain.TimeSlot) bool { return true }), nil
}

func (r *memorySlotRepository) ListAvailable(ctx context.Context, sessionID uuid.UUID) ([]*domain.TimeSlot, error) {
	defer r.lock()()
	return r.filter(sessionID, (*domain.TimeSlot).Selectable), nil
}

func (r *memorySlotRepository) FindFirstAvailable(ctx context.Context, sessionID uuid.UUID) (*domain.TimeSlot, error) {
	defer r.lock()()
	if slots := r.filter(sessionID, (*domain.TimeSlot).Selectable); len(slots) > 0 {
		return slots[0], nil
	}
	return nil, nil
}

func (r *memorySlotRepository) FindAvailableByGroup(ctx context.Context, sessionID uuid.UUID, groupNumber int) (*domain.TimeSlot, error) {
	defer r.lock()()
	slots := r.filter(sessionID, func(s *domain.TimeSlot) bool {
		return s.GroupNumber == groupNumber && s.Selectable()
	})
	if len(slots) > 0 {
		return slots[0], nil
	}
	return nil, nil
}

// filter returns copies ordered by date then group
func (r *memorySlotRepository) filter(sessionID uuid.UUID, keep func(*domain.TimeSlot) bool) []*domain.TimeSlot {
	var out []*domain.TimeSlot
	for _, slot := range r.data().slots {
		if slot.LabSessionID == sessionID && keep(slot) {
			out = append(out, copySlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SessionDate.Equal(out[j].SessionDate) {
			return out[i].SessionDate.Before(out[j].SessionDate)
		}
		return out[i].GroupNumber < out[j].GroupNumber
	})
	return out
}

func (r *memorySlotRepository) IncrementIfAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()
	slot, ok := r.data().slots[id]
	if !ok || !slot.Selectable() {
		return false, nil
	}
	slot.CurrentCount++
	return true, nil
}

func (r *memorySlotRepository) DecrementIfPositive(ctx context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()
	slot, ok := r.data().slots[id]
	if !ok || slot.CurrentCount <= 0 {
		return false, nil
	}
	slot.CurrentCount--
	return true, nil
}

func (r *memorySlotRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	defer r.lock()()
	if slot, ok := r.data().slots[id]; ok {
		slot.Active = active
	}
	return nil
}

func (r *memorySlotRepository) UpdateMaxStudents(ctx context.Context, sessionID uuid.UUID, max int) error {
	defer r.lock()()
	for _, slot := range r.data().slots {
		if slot.LabSessionID != sessionID {
			continue
		}
		slot.MaxStudents = max
		if slot.CurrentCount > max {
			slot.MaxStudents = slot.CurrentCount
		}
	}
	return nil
}

func (r *memorySlotRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	defer r.lock()()
	for id, slot := range r.data().slots {
		if slot.LabSessionID == sessionID {
			delete(r.data().slots, id)
		}
	}
	return nil
}

func (r *memorySlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()
	delete(r.data().slots, id)
	return nil
}

type memoryRegistrationRepository struct{ memoryRepo }

func (r *memoryRegistrationRepository) Create(ctx context.Context, registration *domain.Registration) error {
	defer r.lock()()
	for _, existing := range r.data().registrations {
		if existing.StudentID == registration.StudentID && existing.LabSessionID == registration.LabSessionID {
			return domain.ErrAlreadyRegistered
		}
	}
	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}
	now := r.store.now()
	registration.CreatedAt, registration.UpdatedAt = now, now
	r.data().registrations[registration.ID] = copyRegistration(registration)
	return nil
}

func (r *memoryRegistrationRepository) Update(ctx context.Context, registration *domain.Registration) error {
	defer r.lock()()
	registration.UpdatedAt = r.store.now()
	r.data().registrations[registration.ID] = copyRegistration(registration)
	return nil
}

func (r *memoryRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	defer r.lock()()
	if reg, ok := r.data().registrations[id]; ok {
		return copyRegistration(reg), nil
	}
	return nil, nil
}

func (r *memoryRegistrationRepository) GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*domain.Registration, error) {
	defer r.lock()()
	for _, reg := range r.data().registrations {
		if reg.StudentID == studentID && reg.LabSessionID == sessionID {
			return copyRegistration(reg), nil
		}
	}
	return nil, nil
}

func (r *memoryRegistrationRepository) ListByStudent(ctx context.Context, studentID uuid.UUID, activeOnly bool) ([]*domain.Registration, error) {
	defer r.lock()()
	out := r.filter(func(reg *domain.Registration) bool {
		return reg.StudentID == studentID && (!activeOnly || reg.IsActive())
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

func (r *memoryRegistrationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	defer r.lock()()
	return r.filter(func(reg *domain.Registration) bool { return reg.LabSessionID == sessionID }), nil
}

func (r *memoryRegistrationRepository) ListByStatus(ctx context.Context, sessionID uuid.UUID, status domain.RegistrationStatus) ([]*domain.Registration, error) {
	defer r.lock()()
	return r.filter(func(reg *domain.Registration) bool {
		return reg.LabSessionID == sessionID && reg.Status == status
	}), nil
}

func (r *memoryRegistrationRepository) ListWaitlisted(ctx context.Context, sessionID uuid.UUID) ([]*domain.Registration, error) {
	defer r.lock()()
	out := r.filter(func(reg *domain.Registration) bool {
		return reg.LabSessionID == sessionID && reg.Status == domain.StatusWaitlisted
	})
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := positionOf(out[i]), positionOf(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (r *memoryRegistrationRepository) CountActive(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	defer r.lock()()
	return int64(len(r.filter(func(reg *domain.Registration) bool {
		return reg.LabSessionID == sessionID && reg.IsActive()
	}))), nil
}

func (r *memoryRegistrationRepository) CountWaitlisted(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	defer r.lock()()
	return int64(len(r.filter(func(reg *domain.Registration) bool {
		return reg.LabSessionID == sessionID && reg.Status == domain.StatusWaitlisted
	}))), nil
}

// filter returns copies ordered by registration time
func (r *memoryRegistrationRepository) filter(keep func(*domain.Registration) bool) []*domain.Registration {
	var out []*domain.Registration
	for _, reg := range r.data().registrations {
		if keep(reg) {
			out = append(out, copyRegistration(reg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type memoryAttendanceRepository struct{ memoryRepo }

func (r *memoryAttendanceRepository) Create(ctx context.Context, attendance *domain.Attendance) error {
	defer r.lock()()
	for _, existing := range r.data().attendance {
		if existing.RegistrationID == attendance.RegistrationID && existing.SessionDate.Equal(domain.DateOf(attendance.SessionDate)) {
			return fmt.Errorf("attendance for registration %s on %s already recorded", attendance.RegistrationID, attendance.SessionDate.Format(domain.DateLayout))
		}
	}
	if attendance.ID == uuid.Nil {
		attendance.ID = uuid.New()
	}
	now := r.store.now()
	attendance.SessionDate = domain.DateOf(attendance.SessionDate)
	attendance.CreatedAt, attendance.UpdatedAt = now, now
	r.data().attendance[attendance.ID] = copyAttendance(attendance)
	return nil
}

func (r *memoryAttendanceRepository) Update(ctx context.Context, attendance *domain.Attendance) error {
	defer r.lock()()
	attendance.UpdatedAt = r.store.now()
	r.data().attendance[attendance.ID] = copyAttendance(attendance)
	return nil
}

func (r *memoryAttendanceRepository) GetByRegistrationAndDate(ctx context.Context, registrationID uuid.UUID, date time.Time) (*domain.Attendance, error) {
	defer r.lock()()
	day := domain.DateOf(date)
	for _, a := range r.data().attendance {
		if a.RegistrationID == registrationID && a.SessionDate.Equal(day) {
			return copyAttendance(a), nil
		}
	}
	return nil, nil
}

func (r *memoryAttendanceRepository) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]*domain.Attendance, error) {
	defer r.lock()()
	return r.filter(func(a *domain.Attendance) bool { return a.RegistrationID == registrationID }), nil
}

func (r *memoryAttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, date *time.Time) ([]*domain.Attendance, error) {
	defer r.lock()()
	return r.filter(func(a *domain.Attendance) bool {
		reg, ok := r.data().registrations[a.RegistrationID]
		if !ok || reg.LabSessionID != sessionID {
			return false
		}
		return date == nil || a.SessionDate.Equal(domain.DateOf(*date))
	}), nil
}

func (r *memoryAttendanceRepository) CountByRegistration(ctx context.Context, registrationID uuid.UUID) (int64, int64, error) {
	defer r.lock()()
	var present, recorded int64
	for _, a := range r.data().attendance {
		if a.RegistrationID != registrationID {
			continue
		}
		recorded++
		if a.Present {
			present++
		}
	}
	return present, recorded, nil
}

// filter returns copies ordered by date then creation time
func (r *memoryAttendanceRepository) filter(keep func(*domain.Attendance) bool) []*domain.Attendance {
	var out []*domain.Attendance
	for _, a := range r.data().attendance {
		if keep(a) {
			out = append(out, copyAttendance(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SessionDate.Equal(out[j].SessionDate) {
			return out[i].SessionDate.Before(out[j].SessionDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type memoryStudentRepository struct{ memoryRepo }

func (r *memoryStudentRepository) Upsert(ctx context.Context, student *domain.Student) error {
	defer r.lock()()
	now := r.store.now()
	if existing, ok := r.data().students[student.StudentID]; ok {
		student.CreatedAt = existing.CreatedAt
	} else {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	stored := *student
	r.data().students[student.StudentID] = &stored
	return nil
}

func (r *memoryStudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	defer r.lock()()
	if s, ok := r.data().students[id]; ok {
		student := *s
		return &student, nil
	}
	return nil, nil
}

type memoryCatalogRepository struct{ memoryRepo }

func (r *memoryCatalogRepository) GetCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	defer r.lock()()
	if c, ok := r.data().courses[id]; ok {
		course := *c
		return &course, nil
	}
	return nil, nil
}

func (r *memoryCatalogRepository) GetPrograms(ctx context.Context, ids []uuid.UUID) ([]*domain.Program, error) {
	defer r.lock()()
	programs := []*domain.Program{}
	for _, id := range ids {
		if p, ok := r.data().programs[id]; ok {
			program := *p
			programs = append(programs, &program)
		}
	}
	return programs, nil
}

func positionOf(reg *domain.Registration) int {
	if reg.WaitlistPosition == nil {
		return int(^uint(0) >> 1)
	}
	return *reg.WaitlistPosition
}

func copySession(s *domain.LabSession) *domain.LabSession {
	c := *s
	c.SessionDays = append(domain.Weekdays(nil), s.SessionDays...)
	c.AllowedProgramIDs = append([]uuid.UUID{}, s.AllowedProgramIDs...)
	if s.RegistrationDeadline != nil {
		deadline := *s.RegistrationDeadline
		c.RegistrationDeadline = &deadline
	}
	return &c
}

func copySlot(s *domain.TimeSlot) *domain.TimeSlot {
	c := *s
	return &c
}

func copyRegistration(r *domain.Registration) *domain.Registration {
	c := *r
	if r.TimeSlotID != nil {
		id := *r.TimeSlotID
		c.TimeSlotID = &id
	}
	if r.WaitlistPosition != nil {
		pos := *r.WaitlistPosition
		c.WaitlistPosition = &pos
	}
	return &c
}

func copyAttendance(a *domain.Attendance) *domain.Attendance {
	c := *a
	if a.CheckInTime != nil {
		at := *a.CheckInTime
		c.CheckInTime = &at
	}
	if a.MarkedBy != nil {
		by := *a.MarkedBy
		c.MarkedBy = &by
	}
	return &c
}
