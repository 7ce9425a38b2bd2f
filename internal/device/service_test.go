package device_test

import (
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/attendance-management/internal/core/events"
	"github.com/frahmantamala/attendance-management/internal/core/locking"
	"github.com/frahmantamala/attendance-management/internal/device"
)

// Mock repository for testing. Create enforces at most one pending row
// per user, matching the partial unique index in the real schema.
type mockRequestRepository struct {
	mu       sync.Mutex
	requests map[int64]*device.ChangeRequest
	nextID   int64
}

func newMockRequestRepository() *mockRequestRepository {
	return &mockRequestRepository{
		requests: make(map[int64]*device.ChangeRequest),
		nextID:   1,
	}
}

func (m *mockRequestRepository) Create(req *device.ChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Status == device.StatusPending {
		for _, existing := range m.requests {
			if existing.UserID == req.UserID && existing.Status == device.StatusPending {
				return device.ErrDuplicatePending
			}
		}
	}
	req.ID = m.nextID
	m.nextID++
	req.CreatedAt = time.Now()
	req.UpdatedAt = time.Now()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepository) GetByID(id int64) (*device.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, device.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *mockRequestRepository) GetPendingForUser(userID int64) (*device.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.UserID == userID && req.Status == device.StatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRequestRepository) ListByUser(userID int64) ([]*device.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*device.ChangeRequest
	for _, req := range m.requests {
		if req.UserID == userID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRequestRepository) ListWithEmployee(status string, limit, offset int) ([]*device.RequestWithEmployee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*device.RequestWithEmployee
	for _, req := range m.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, &device.RequestWithEmployee{ChangeRequest: *req})
	}
	return out, nil
}

func (m *mockRequestRepository) Update(req *device.ChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; !ok {
		return device.ErrRequestNotFound
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepository) SupersedePending(userID, exceptID, reviewerID int64, note string, reviewedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, req := range m.requests {
		if req.UserID != userID || req.ID == exceptID || req.Status != device.StatusPending {
			continue
		}
		req.Status = device.StatusRejected
		req.ReviewedBy = &reviewerID
		reviewed := reviewedAt
		req.ReviewedAt = &reviewed
		req.Note = note
		count++
	}
	return count, nil
}

func (m *mockRequestRepository) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return device.ErrRequestNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *mockRequestRepository) DeleteByStatus(status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, req := range m.requests {
		if req.Status == status {
			delete(m.requests, id)
			count++
		}
	}
	return count, nil
}

func (m *mockRequestRepository) StatsByUser() ([]*device.UserRequestStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := make(map[int64]*device.UserRequestStats)
	for _, req := range m.requests {
		stats, ok := byUser[req.UserID]
		if !ok {
			stats = &device.UserRequestStats{UserID: req.UserID}
			byUser[req.UserID] = stats
		}
		stats.Total++
		switch req.Status {
		case device.StatusPending:
			stats.Pending++
		case device.StatusApproved:
			stats.Approved++
		case device.StatusRejected:
			stats.Rejected++
		case device.StatusCancelled:
			stats.Cancelled++
		}
	}
	var out []*device.UserRequestStats
	for _, stats := range byUser {
		out = append(out, stats)
	}
	return out, nil
}

// Mock binder for testing
type mockBinder struct {
	mu        sync.Mutex
	bindings  map[int64]string
	bindError error
	calls     int
}

func newMockBinder() *mockBinder {
	return &mockBinder{bindings: make(map[int64]string)}
}

func (m *mockBinder) BindDevice(userID int64, deviceID string, info device.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bindError != nil {
		return m.bindError
	}
	m.calls++
	m.bindings[userID] = deviceID
	return nil
}

func (m *mockBinder) boundDevice(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[userID]
}

var _ = Describe("DeviceService", func() {
	var (
		service *device.Service
		repo    *mockRequestRepository
		binder  *mockBinder
	)

	info := device.Info{UserAgent: "test-agent", IP: "10.0.0.1"}

	BeforeEach(func() {
		repo = newMockRequestRepository()
		binder = newMockBinder()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(logger)
		service = device.NewService(repo, binder, locking.NewKeyedMutex(), bus, logger)
	})

	Describe("RequestChange", func() {
		Context("when the user has no pending request", func() {
			It("should create a pending request", func() {
				req, created, err := service.RequestChange(1, "dev-new", info)

				Expect(err).ToNot(HaveOccurred())
				Expect(created).To(BeTrue())
				Expect(req.Status).To(Equal(device.StatusPending))
				Expect(req.DeviceID).To(Equal("dev-new"))
			})
		})

		Context("when a pending request already exists", func() {
			It("should return the existing request unchanged", func() {
				first, _, err := service.RequestChange(1, "dev-a", info)
				Expect(err).ToNot(HaveOccurred())

				second, created, err := service.RequestChange(1, "dev-b", info)

				Expect(err).ToNot(HaveOccurred())
				Expect(created).To(BeFalse())
				Expect(second.ID).To(Equal(first.ID))
				Expect(second.DeviceID).To(Equal("dev-a"))
			})
		})

		Context("when the same user requests concurrently", func() {
			It("should end up with a single pending request", func() {
				const attempts = 10

				var wg sync.WaitGroup
				ids := make([]int64, attempts)
				createdFlags := make([]bool, attempts)
				for i := 0; i < attempts; i++ {
					wg.Add(1)
					go func(idx int) {
						defer wg.Done()
						req, created, err := service.RequestChange(1, "dev-new", info)
						Expect(err).ToNot(HaveOccurred())
						ids[idx] = req.ID
						createdFlags[idx] = created
					}(i)
				}
				wg.Wait()

				createdCount := 0
				for i := 0; i < attempts; i++ {
					Expect(ids[i]).To(Equal(ids[0]))
					if createdFlags[i] {
						createdCount++
					}
				}
				Expect(createdCount).To(Equal(1))

				pending, err := repo.GetPendingForUser(1)
				Expect(err).ToNot(HaveOccurred())
				Expect(pending).ToNot(BeNil())
			})
		})
	})

	Describe("Approve", func() {
		It("should bind the requested device and mark the request approved", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			approved, err := service.Approve(req.ID, 99)

			Expect(err).ToNot(HaveOccurred())
			Expect(approved.Status).To(Equal(device.StatusApproved))
			Expect(*approved.ReviewedBy).To(Equal(int64(99)))
			Expect(approved.ReviewedAt).ToNot(BeNil())
			Expect(binder.boundDevice(1)).To(Equal("dev-new"))
		})

		It("should return not found for an unknown request", func() {
			_, err := service.Approve(12345, 99)
			Expect(err).To(Equal(device.ErrRequestNotFound))
		})

		Context("when the request was already reviewed", func() {
			It("should reject a second review", func() {
				req, _, err := service.RequestChange(1, "dev-new", info)
				Expect(err).ToNot(HaveOccurred())
				_, err = service.Approve(req.ID, 99)
				Expect(err).ToNot(HaveOccurred())

				_, err = service.Approve(req.ID, 100)
				Expect(err).To(Equal(device.ErrAlreadyReviewed))

				_, err = service.Reject(req.ID, 100, "")
				Expect(err).To(Equal(device.ErrAlreadyReviewed))
			})
		})

		Context("when binding fails", func() {
			It("should leave the request pending", func() {
				req, _, err := service.RequestChange(1, "dev-new", info)
				Expect(err).ToNot(HaveOccurred())
				binder.bindError = device.ErrRequestNotFound

				_, err = service.Approve(req.ID, 99)
				Expect(err).To(HaveOccurred())

				stored, err := repo.GetByID(req.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(stored.Status).To(Equal(device.StatusPending))
			})
		})
	})

	Describe("Reject", func() {
		It("should mark the request rejected with the note", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			rejected, err := service.Reject(req.ID, 99, "unrecognized device")

			Expect(err).ToNot(HaveOccurred())
			Expect(rejected.Status).To(Equal(device.StatusRejected))
			Expect(rejected.Note).To(Equal("unrecognized device"))
			Expect(binder.calls).To(BeZero())
		})
	})

	Describe("Cancel", func() {
		It("should let the owner withdraw a pending request", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			cancelled, err := service.Cancel(req.ID, 1)

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled.Status).To(Equal(device.StatusCancelled))
		})

		It("should refuse a caller who does not own the request", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Cancel(req.ID, 2)
			Expect(err).To(Equal(device.ErrNotRequestOwner))
		})

		It("should refuse once the request is no longer pending", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Reject(req.ID, 99, "")
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Cancel(req.ID, 1)
			Expect(err).To(Equal(device.ErrNotPending))
		})

		It("should allow a fresh request after cancelling", func() {
			req, _, err := service.RequestChange(1, "dev-a", info)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Cancel(req.ID, 1)
			Expect(err).ToNot(HaveOccurred())

			replacement, created, err := service.RequestChange(1, "dev-b", info)

			Expect(err).ToNot(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(replacement.DeviceID).To(Equal("dev-b"))
		})
	})

	Describe("Delete", func() {
		It("should let the owner delete their own request", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			Expect(service.Delete(req.ID, 1, false)).To(Succeed())

			_, err = repo.GetByID(req.ID)
			Expect(err).To(Equal(device.ErrRequestNotFound))
		})

		It("should refuse a non-admin deleting someone else's request", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			err = service.Delete(req.ID, 2, false)
			Expect(err).To(Equal(device.ErrNotRequestOwner))
		})

		It("should let an admin delete any request", func() {
			req, _, err := service.RequestChange(1, "dev-new", info)
			Expect(err).ToNot(HaveOccurred())

			Expect(service.Delete(req.ID, 2, true)).To(Succeed())
		})
	})

	Describe("BulkDeleteByStatus", func() {
		It("should delete only requests with the given status", func() {
			req1, _, err := service.RequestChange(1, "dev-a", info)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Reject(req1.ID, 99, "")
			Expect(err).ToNot(HaveOccurred())
			_, _, err = service.RequestChange(2, "dev-b", info)
			Expect(err).ToNot(HaveOccurred())

			count, err := service.BulkDeleteByStatus(device.StatusRejected)

			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(int64(1)))

			pending, err := repo.GetPendingForUser(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).ToNot(BeNil())
		})

		It("should reject an unknown status", func() {
			_, err := service.BulkDeleteByStatus("archived")
			Expect(err).To(Equal(device.ErrInvalidStatus))
		})
	})

	Describe("ListRequests", func() {
		It("should reject an unknown status filter", func() {
			_, err := service.ListRequests("archived", 50, 0)
			Expect(err).To(Equal(device.ErrInvalidStatus))
		})

		It("should accept an empty status filter", func() {
			_, _, err := service.RequestChange(1, "dev-a", info)
			Expect(err).ToNot(HaveOccurred())

			list, err := service.ListRequests("", 50, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})
	})

	Describe("AdminBind", func() {
		It("should bind immediately without a ledger entry", func() {
			Expect(service.AdminBind(7, "dev-admin", info)).To(Succeed())

			Expect(binder.boundDevice(7)).To(Equal("dev-admin"))
			pending, err := repo.GetPendingForUser(7)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeNil())
		})
	})

	Describe("Diagnostics", func() {
		It("should aggregate counts per user", func() {
			req, _, err := service.RequestChange(1, "dev-a", info)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Approve(req.ID, 99)
			Expect(err).ToNot(HaveOccurred())
			_, _, err = service.RequestChange(1, "dev-b", info)
			Expect(err).ToNot(HaveOccurred())

			stats, err := service.Diagnostics()

			Expect(err).ToNot(HaveOccurred())
			Expect(stats).To(HaveLen(1))
			Expect(stats[0].UserID).To(Equal(int64(1)))
			Expect(stats[0].Total).To(Equal(int64(2)))
			Expect(stats[0].Approved).To(Equal(int64(1)))
			Expect(stats[0].Pending).To(Equal(int64(1)))
		})
	})
})
