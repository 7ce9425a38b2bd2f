package attendance_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/attendance-management/internal/attendance"
	"github.com/frahmantamala/attendance-management/internal/core/events"
	"github.com/frahmantamala/attendance-management/internal/core/locking"
	"github.com/frahmantamala/attendance-management/internal/policy"
)

// Mock repository for testing
type mockAttendanceRepository struct {
	mu          sync.Mutex
	records     []*attendance.Record
	createError error
	getError    error
	nextID      int64
}

func newMockAttendanceRepository() *mockAttendanceRepository {
	return &mockAttendanceRepository{nextID: 1}
}

func (m *mockAttendanceRepository) Create(rec *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	rec.ID = m.nextID
	m.nextID++
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = time.Now()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockAttendanceRepository) GetLastForUser(userID int64) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	var last *attendance.Record
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		if last == nil || rec.Timestamp.After(last.Timestamp) || (rec.Timestamp.Equal(last.Timestamp) && rec.ID > last.ID) {
			last = rec
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *mockAttendanceRepository) Update(rec *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.records {
		if existing.ID == rec.ID {
			cp := *rec
			m.records[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *mockAttendanceRepository) ListForUser(userID int64, from, to time.Time, limit, offset int) ([]*attendance.Record, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*attendance.Record
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		if !from.IsZero() && rec.Timestamp.Before(from) {
			continue
		}
		if rec.Timestamp.After(to) {
			continue
		}
		matched = append(matched, rec)
	}
	total := int64(len(matched))
	start := offset
	end := offset + limit
	if start >= len(matched) {
		return []*attendance.Record{}, total, nil
	}
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *mockAttendanceRepository) countForUser(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.records {
		if rec.UserID == userID {
			count++
		}
	}
	return count
}

// Mock policy gate for testing
type mockGate struct {
	decision  *policy.Decision
	evalError error
}

func (m *mockGate) Evaluate(ctx context.Context, req policy.Request) (*policy.Decision, error) {
	if m.evalError != nil {
		return nil, m.evalError
	}
	if m.decision != nil {
		return m.decision, nil
	}
	return &policy.Decision{
		Verdict:    policy.VerdictAllow,
		DeviceID:   req.DeviceID,
		ResolvedIP: "10.0.0.1",
	}, nil
}

var _ = Describe("AttendanceService", func() {
	var (
		service *attendance.Service
		repo    *mockAttendanceRepository
		gate    *mockGate
		logger  *slog.Logger
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = newMockAttendanceRepository()
		gate = &mockGate{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(logger)
		service = attendance.NewService(repo, gate, locking.NewKeyedMutex(), bus, logger)
		ctx = context.Background()
	})

	Describe("Mark", func() {
		Context("when marking check-in for the first time", func() {
			It("should record the mark with the decision's device and IP", func() {
				rec, decision, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "test-agent")

				Expect(err).ToNot(HaveOccurred())
				Expect(decision.Allowed()).To(BeTrue())
				Expect(rec).ToNot(BeNil())
				Expect(rec.Type).To(Equal(attendance.TypeIn))
				Expect(rec.Status).To(Equal(attendance.StatusRecorded))
				Expect(rec.DeviceID).To(Equal("dev-1"))
				Expect(rec.IP).To(Equal("10.0.0.1"))
			})
		})

		Context("when alternating in and out", func() {
			It("should accept in, out, in", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, _, err = service.Mark(ctx, 1, attendance.TypeOut, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, _, err = service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				Expect(repo.countForUser(1)).To(Equal(3))
			})
		})

		Context("when repeating the same mark type", func() {
			It("should reject a second consecutive check-in", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				rec, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")

				Expect(err).To(Equal(attendance.ErrSequenceViolation))
				Expect(rec).To(BeNil())
				Expect(repo.countForUser(1)).To(Equal(1))
			})

			It("should reject check-out as the first mark ever", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeOut, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, _, err = service.Mark(ctx, 1, attendance.TypeOut, "dev-1", "10.0.0.1", "")
				Expect(err).To(Equal(attendance.ErrSequenceViolation))
			})
		})

		Context("when the mark type is invalid", func() {
			It("should reject without touching storage", func() {
				_, _, err := service.Mark(ctx, 1, "lunch", "dev-1", "10.0.0.1", "")

				Expect(err).To(Equal(attendance.ErrInvalidType))
				Expect(repo.countForUser(1)).To(BeZero())
			})
		})

		Context("when the policy gate denies", func() {
			It("should return the decision without recording", func() {
				gate.decision = &policy.Decision{Verdict: policy.VerdictDenyNetwork, ResolvedIP: "203.0.113.9"}

				rec, decision, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "203.0.113.9", "")

				Expect(err).ToNot(HaveOccurred())
				Expect(rec).To(BeNil())
				Expect(decision.Verdict).To(Equal(policy.VerdictDenyNetwork))
				Expect(repo.countForUser(1)).To(BeZero())
			})

			It("should pass the review-required request id through", func() {
				gate.decision = &policy.Decision{Verdict: policy.VerdictReviewRequired, RequestID: 42}

				rec, decision, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-new", "10.0.0.1", "")

				Expect(err).ToNot(HaveOccurred())
				Expect(rec).To(BeNil())
				Expect(decision.RequestID).To(Equal(int64(42)))
			})
		})

		Context("when two users mark concurrently", func() {
			It("should keep their sequences independent", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, _, err = service.Mark(ctx, 2, attendance.TypeIn, "dev-2", "10.0.0.2", "")
				Expect(err).ToNot(HaveOccurred())
			})
		})

		Context("when the same user submits duplicate marks concurrently", func() {
			It("should record exactly one check-in", func() {
				const attempts = 20

				var wg sync.WaitGroup
				errs := make([]error, attempts)
				for i := 0; i < attempts; i++ {
					wg.Add(1)
					go func(idx int) {
						defer wg.Done()
						_, _, errs[idx] = service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
					}(i)
				}
				wg.Wait()

				succeeded := 0
				violations := 0
				for _, err := range errs {
					switch err {
					case nil:
						succeeded++
					case attendance.ErrSequenceViolation:
						violations++
					default:
						Fail("unexpected error: " + err.Error())
					}
				}

				Expect(succeeded).To(Equal(1))
				Expect(violations).To(Equal(attempts - 1))
				Expect(repo.countForUser(1)).To(Equal(1))
			})
		})
	})

	Describe("breaks", func() {
		Context("when starting a break while checked in", func() {
			It("should open a break entry", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				rec, err := service.StartBreak(1)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.OnBreak).To(BeTrue())
				breaks := rec.BreakList()
				Expect(breaks).To(HaveLen(1))
				Expect(breaks[0].End).To(BeNil())
			})
		})

		Context("when starting a break without an open check-in", func() {
			It("should reject when the user never checked in", func() {
				_, err := service.StartBreak(1)
				Expect(err).To(Equal(attendance.ErrNotCheckedIn))
			})

			It("should reject after check-out", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())
				_, _, err = service.Mark(ctx, 1, attendance.TypeOut, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, err = service.StartBreak(1)
				Expect(err).To(Equal(attendance.ErrNotCheckedIn))
			})
		})

		Context("when a break is already running", func() {
			It("should reject a second break start", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())
				_, err = service.StartBreak(1)
				Expect(err).ToNot(HaveOccurred())

				_, err = service.StartBreak(1)
				Expect(err).To(Equal(attendance.ErrAlreadyOnBreak))
			})
		})

		Context("when ending a break", func() {
			It("should close the open break entry", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())
				_, err = service.StartBreak(1)
				Expect(err).ToNot(HaveOccurred())

				rec, err := service.EndBreak(1)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.OnBreak).To(BeFalse())
				breaks := rec.BreakList()
				Expect(breaks).To(HaveLen(1))
				Expect(breaks[0].End).ToNot(BeNil())
			})

			It("should reject when no break is running", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				_, err = service.EndBreak(1)
				Expect(err).To(Equal(attendance.ErrNotOnBreak))
			})
		})

		Context("when taking multiple breaks in one shift", func() {
			It("should accumulate closed break entries", func() {
				_, _, err := service.Mark(ctx, 1, attendance.TypeIn, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())

				for i := 0; i < 2; i++ {
					_, err = service.StartBreak(1)
					Expect(err).ToNot(HaveOccurred())
					_, err = service.EndBreak(1)
					Expect(err).ToNot(HaveOccurred())
				}

				rec, err := service.StartBreak(1)
				Expect(err).ToNot(HaveOccurred())
				Expect(rec.BreakList()).To(HaveLen(3))
			})
		})
	})

	Describe("History", func() {
		BeforeEach(func() {
			for i := 0; i < 5; i++ {
				markType := attendance.TypeIn
				if i%2 == 1 {
					markType = attendance.TypeOut
				}
				_, _, err := service.Mark(ctx, 1, markType, "dev-1", "10.0.0.1", "")
				Expect(err).ToNot(HaveOccurred())
			}
		})

		It("should return the total alongside the page", func() {
			records, total, err := service.History(1, time.Time{}, time.Now().Add(time.Hour), 1, 2)

			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(Equal(int64(5)))
			Expect(records).To(HaveLen(2))
		})

		It("should clamp an out-of-range limit to the default", func() {
			records, _, err := service.History(1, time.Time{}, time.Now().Add(time.Hour), 1, 500)

			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(HaveLen(5))
		})

		It("should exclude records outside the window", func() {
			_, total, err := service.History(1, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), 1, 20)

			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})
})

var _ = Describe("ParseHistoryRange", func() {
	It("should parse RFC3339 bounds", func() {
		from, to := attendance.ParseHistoryRange("2026-01-02T00:00:00Z", "2026-01-03T00:00:00Z")

		Expect(from).To(Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
		Expect(to).To(Equal(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)))
	})

	It("should extend a bare to-date through end of day", func() {
		_, to := attendance.ParseHistoryRange("", "2026-01-02")

		Expect(to.After(time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC))).To(BeTrue())
		Expect(to.Before(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))).To(BeTrue())
	})

	It("should fall back to an open range on garbage input", func() {
		before := time.Now()
		from, to := attendance.ParseHistoryRange("not-a-date", "also-not")

		Expect(from.IsZero()).To(BeTrue())
		Expect(to.Before(before)).To(BeFalse())
	})
})
