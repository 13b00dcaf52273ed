package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbes(t *testing.T) {
	tests := []struct {
		name           string
		endpoint       string
		mockSetup      func(*mockStore)
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Healthz Always OK",
			endpoint:       "/healthz",
			expectedStatus: http.StatusOK,
			expectedInBody: `"status":"ok"`,
		},
		{
			name:           "Readyz Success",
			endpoint:       "/readyz",
			mockSetup:      func(m *mockStore) { m.pingErr = nil },
			expectedStatus: http.StatusOK,
			expectedInBody: `"database":"ok"`,
		},
		{
			name:           "Readyz Database Fail",
			endpoint:       "/readyz",
			mockSetup:      func(m *mockStore) { m.pingErr = errors.New("db down") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedInBody: "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockStore{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h := New(mock, nil)

			req := httptest.NewRequest(http.MethodGet, tt.endpoint, nil)
			rr := httptest.NewRecorder()

			// Route manually since we are testing specific handler functions
			if tt.endpoint == "/healthz" {
				h.Healthz(rr, req)
			} else {
				h.Readyz(rr, req)
			}

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if tt.expectedInBody != "" && !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("handler returned unexpected body: got %s want substring %s", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}
