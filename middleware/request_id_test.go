package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when well formed", "existing-request-id-123", true},
		{"replaced when too long", strings.Repeat("a", 65), false},
		{"replaced when it has spaces", "id with spaces", false},
		{"replaced when it has newlines", "id\nforged=1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromGin, fromCtx string
			router := gin.New()
			router.Use(RequestID())
			router.GET("/test", func(c *gin.Context) {
				fromGin = GetRequestID(c)
				fromCtx = logger.RequestID(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			responseID := w.Header().Get("X-Request-ID")
			if tt.keep && responseID != tt.incoming {
				t.Errorf("Expected request ID '%s', got '%s'", tt.incoming, responseID)
			}
			if !tt.keep {
				if _, err := uuid.Parse(responseID); err != nil {
					t.Errorf("Expected generated uuid, got '%s'", responseID)
				}
			}
			if fromGin != responseID || fromCtx != responseID {
				t.Errorf("Expected %s in gin and request context, got %s / %s", responseID, fromGin, fromCtx)
			}
		})
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if requestID := GetRequestID(c); requestID != "" {
		t.Errorf("Expected empty string, got '%s'", requestID)
	}
}
