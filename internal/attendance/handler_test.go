package attendance_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/attendance-management/internal/attendance"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/policy"
)

// Mock service for handler testing
type mockAttendanceService struct {
	record     *attendance.Record
	decision   *policy.Decision
	markError  error
	breakError error
	lastMark   struct {
		userID   int64
		markType string
		deviceID string
	}
	historyTotal int64
	historyPage  struct {
		page  int
		limit int
	}
}

func (m *mockAttendanceService) Mark(ctx context.Context, userID int64, markType, deviceID, sourceAddr, userAgent string) (*attendance.Record, *policy.Decision, error) {
	m.lastMark.userID = userID
	m.lastMark.markType = markType
	m.lastMark.deviceID = deviceID
	if m.markError != nil {
		return nil, nil, m.markError
	}
	if m.decision != nil && !m.decision.Allowed() {
		return nil, m.decision, nil
	}
	return m.record, m.decision, nil
}

func (m *mockAttendanceService) StartBreak(userID int64) (*attendance.Record, error) {
	if m.breakError != nil {
		return nil, m.breakError
	}
	return m.record, nil
}

func (m *mockAttendanceService) EndBreak(userID int64) (*attendance.Record, error) {
	if m.breakError != nil {
		return nil, m.breakError
	}
	return m.record, nil
}

func (m *mockAttendanceService) History(userID int64, from, to time.Time, page, limit int) ([]*attendance.Record, int64, error) {
	m.historyPage.page = page
	m.historyPage.limit = limit
	return []*attendance.Record{}, m.historyTotal, nil
}

func markRequest(body []byte, user *auth.User) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/mark", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(auth.ContextWithUser(req.Context(), user))
	}
	return req
}

var _ = Describe("AttendanceHandler", func() {
	var (
		handler  *attendance.Handler
		service  *mockAttendanceService
		recorder *httptest.ResponseRecorder
	)

	user := &auth.User{ID: 1, Email: "rina@mail.com", Role: "employee"}

	allowDecision := &policy.Decision{
		Verdict:    policy.VerdictAllow,
		DeviceID:   "dev-1",
		ResolvedIP: "10.0.0.1",
	}

	BeforeEach(func() {
		service = &mockAttendanceService{
			record: &attendance.Record{
				ID:     7,
				UserID: 1,
				Type:   attendance.TypeIn,
				Status: attendance.StatusRecorded,
			},
			decision: allowDecision,
		}
		handler = attendance.NewHandler(service)
		recorder = httptest.NewRecorder()
	})

	Describe("Mark", func() {
		It("should return 200 with the recorded mark", func() {
			body, _ := json.Marshal(map[string]string{"type": "in", "device_id": "dev-1"})

			handler.Mark(recorder, markRequest(body, user))

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var rec attendance.Record
			Expect(json.Unmarshal(recorder.Body.Bytes(), &rec)).To(Succeed())
			Expect(rec.ID).To(Equal(int64(7)))
			Expect(service.lastMark.deviceID).To(Equal("dev-1"))
		})

		It("should fall back to the X-Device-ID header", func() {
			body, _ := json.Marshal(map[string]string{"type": "in"})
			req := markRequest(body, user)
			req.Header.Set("X-Device-ID", "dev-header")

			handler.Mark(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(service.lastMark.deviceID).To(Equal("dev-header"))
		})

		It("should return 401 without an authenticated user", func() {
			body, _ := json.Marshal(map[string]string{"type": "in"})

			handler.Mark(recorder, markRequest(body, nil))

			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should return 400 for a malformed body", func() {
			handler.Mark(recorder, markRequest([]byte("{broken"), user))

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return 400 for an unknown mark type", func() {
			body, _ := json.Marshal(map[string]string{"type": "lunch"})

			handler.Mark(recorder, markRequest(body, user))

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return 422 on a sequence violation", func() {
			service.markError = attendance.ErrSequenceViolation
			body, _ := json.Marshal(map[string]string{"type": "in"})

			handler.Mark(recorder, markRequest(body, user))

			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		Context("when the policy gate denies", func() {
			It("should return 403 NETWORK_BLOCKED for a network deny", func() {
				service.decision = &policy.Decision{Verdict: policy.VerdictDenyNetwork, ResolvedIP: "203.0.113.9"}
				body, _ := json.Marshal(map[string]string{"type": "in"})

				handler.Mark(recorder, markRequest(body, user))

				Expect(recorder.Code).To(Equal(http.StatusForbidden))
				var resp map[string]interface{}
				Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp["code"]).To(Equal("NETWORK_BLOCKED"))
			})

			It("should return 400 DEVICE_MISSING for a missing device", func() {
				service.decision = &policy.Decision{Verdict: policy.VerdictDenyMissingDevice}
				body, _ := json.Marshal(map[string]string{"type": "in"})

				handler.Mark(recorder, markRequest(body, user))

				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				var resp map[string]interface{}
				Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp["code"]).To(Equal("DEVICE_MISSING"))
			})

			It("should return 403 with the request id when review is required", func() {
				service.decision = &policy.Decision{Verdict: policy.VerdictReviewRequired, RequestID: 42}
				body, _ := json.Marshal(map[string]string{"type": "in"})

				handler.Mark(recorder, markRequest(body, user))

				Expect(recorder.Code).To(Equal(http.StatusForbidden))
				var resp map[string]interface{}
				Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp["code"]).To(Equal("DEVICE_REVIEW_REQUIRED"))
				Expect(resp["request_id"]).To(BeNumerically("==", 42))
			})
		})
	})

	Describe("StartBreak", func() {
		It("should return 422 when not checked in", func() {
			service.breakError = attendance.ErrNotCheckedIn
			req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/break/start", nil)
			req = req.WithContext(auth.ContextWithUser(req.Context(), user))

			handler.StartBreak(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should return the updated record", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/break/start", nil)
			req = req.WithContext(auth.ContextWithUser(req.Context(), user))

			handler.StartBreak(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("History", func() {
		It("should apply default pagination", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/history", nil)
			req = req.WithContext(auth.ContextWithUser(req.Context(), user))

			handler.History(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(service.historyPage.page).To(Equal(1))
			Expect(service.historyPage.limit).To(Equal(20))
		})

		It("should ignore an out-of-range limit", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/history?page=2&limit=500", nil)
			req = req.WithContext(auth.ContextWithUser(req.Context(), user))

			handler.History(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(service.historyPage.page).To(Equal(2))
			Expect(service.historyPage.limit).To(Equal(20))
		})
	})
})
