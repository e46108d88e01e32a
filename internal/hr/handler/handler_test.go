package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dossier/internal/hr/models"
	"dossier/internal/hr/service"
	"dossier/internal/hr/store/memory"
	jwttoken "dossier/internal/jwt_token"
	id "dossier/pkg/domain"
)

type HandlerSuite struct {
	suite.Suite
	router *chi.Mux
	org    id.OrgID
	token  string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	store := memory.New()
	svc := service.New(store, store, store, store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwtService := jwttoken.NewJWTService("test-signing-key", "test-issuer", "test-audience")
	token, err := jwtService.GenerateAccessToken(id.ActorID(uuid.New()), time.Hour)
	s.Require().NoError(err)
	s.token = token

	s.router = chi.NewRouter()
	New(svc, logger, jwttoken.NewAdapter(jwtService)).Register(s.router)
	s.org = id.OrgID(uuid.New())
}

func (s *HandlerSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) dispatchBody(key models.ActionKey, effective string, payload map[string]any) map[string]any {
	return map[string]any{
		"action_key":      key,
		"effective_date":  effective,
		"idempotency_key": uuid.NewString(),
		"payload":         payload,
	}
}

func (s *HandlerSuite) createEmployee(number, nationalID string) string {
	w := s.request(http.MethodPost, "/orgs/"+s.org.String()+"/actions",
		s.dispatchBody(models.ActionProfileCreated, "2024-01-01", map[string]any{
			"employee_number": number,
			"national_id":     nationalID,
			"first_name":      "Dana",
		}))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var result models.ActionResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	return result.EmployeeID.String()
}

func (s *HandlerSuite) TestAuthRequired() {
	req := httptest.NewRequest(http.MethodGet, "/actions/catalog", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerSuite) TestCatalog() {
	w := s.request(http.MethodGet, "/actions/catalog", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		Actions []struct {
			Key   string `json:"key"`
			Label string `json:"label"`
		} `json:"actions"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp.Actions, 8)
}

func (s *HandlerSuite) TestDispatchAndReplay() {
	empRef := s.createEmployee("1001", "300111222")

	body := s.dispatchBody(models.ActionAddressChanged, "2024-03-01", map[string]any{"city": "Haifa"})
	path := "/orgs/" + s.org.String() + "/employees/" + empRef + "/actions"

	first := s.request(http.MethodPost, path, body)
	s.Require().Equal(http.StatusCreated, first.Code, first.Body.String())

	// same idempotency key replays instead of re-applying
	second := s.request(http.MethodPost, path, body)
	s.Require().Equal(http.StatusOK, second.Code, second.Body.String())

	var result models.ActionResult
	s.Require().NoError(json.Unmarshal(second.Body.Bytes(), &result))
	s.False(result.Applied)
	s.True(result.IdempotentReplay)
}

func (s *HandlerSuite) TestDispatchRejections() {
	empRef := s.createEmployee("1002", "300111333")
	path := "/orgs/" + s.org.String() + "/employees/" + empRef + "/actions"

	s.Run("malformed org id", func() {
		w := s.request(http.MethodPost, "/orgs/not-a-uuid/employees/"+empRef+"/actions",
			s.dispatchBody(models.ActionAddressChanged, "2024-01-01", nil))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("missing action key", func() {
		w := s.request(http.MethodPost, path, map[string]any{
			"effective_date":  "2024-01-01",
			"idempotency_key": uuid.NewString(),
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("missing idempotency key", func() {
		w := s.request(http.MethodPost, path, map[string]any{
			"action_key":     models.ActionAddressChanged,
			"effective_date": "2024-01-01",
			"payload":        map[string]any{"city": "Haifa"},
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown action key", func() {
		w := s.request(http.MethodPost, path,
			s.dispatchBody("employee_salary.changed", "2024-01-01", nil))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown employee", func() {
		w := s.request(http.MethodPost, "/orgs/"+s.org.String()+"/employees/"+uuid.NewString()+"/actions",
			s.dispatchBody(models.ActionAddressChanged, "2024-01-01", map[string]any{"city": "Haifa"}))
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("end before effective date", func() {
		w := s.request(http.MethodPost, path,
			s.dispatchBody(models.ActionFamilyChanged, "2024-06-01", map[string]any{
				"first_name": "Amit", "valid_to": "2024-05-01",
			}))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("wrong content type", func() {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte("city=Haifa")))
		req.Header.Set("Authorization", "Bearer "+s.token)
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusUnsupportedMediaType, w.Code)
	})
}

func (s *HandlerSuite) TestEmployeeFile() {
	empRef := s.createEmployee("1003", "300111444")
	s.request(http.MethodPost, "/orgs/"+s.org.String()+"/employees/"+empRef+"/actions",
		s.dispatchBody(models.ActionAddressChanged, "2024-02-01", map[string]any{"city": "Haifa"}))

	s.Run("by internal id", func() {
		w := s.request(http.MethodGet, "/orgs/"+s.org.String()+"/employees/"+empRef+"/file", nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		var file models.EmployeeFile
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &file))
		s.Equal("1003", file.Employee.EmployeeNumber)
		s.Len(file.Addresses, 1)
		s.Len(file.Timeline, 2)
	})

	s.Run("by business number with limit", func() {
		w := s.request(http.MethodGet, "/orgs/"+s.org.String()+"/employees/1003/file?timeline_limit=1", nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var file models.EmployeeFile
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &file))
		s.Len(file.Timeline, 1)
	})

	s.Run("bad limit", func() {
		w := s.request(http.MethodGet, "/orgs/"+s.org.String()+"/employees/1003/file?timeline_limit=abc", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
