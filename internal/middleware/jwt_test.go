package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func jwtTestRouter(devMode bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTMiddleware(devMode))
	r.GET("/whoami", func(c *gin.Context) {
		op := service.GetOperatorInfo(c.Request.Context())
		if op == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no operator"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": op.UserID})
	})
	return r
}

func signTestToken(t *testing.T, key []byte) string {
	t.Helper()
	claims := service.UserClaims{
		UserID:   "1001",
		Username: "admin",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	r := jwtTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, service.SigningKey()))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestJWTMiddleware_WrongKeyRejected(t *testing.T) {
	r := jwtTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, []byte("not-the-configured-key")))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	r := jwtTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTMiddleware_ConfiguredKey(t *testing.T) {
	original := service.SigningKey()
	defer service.SetSigningKey(original)

	service.SetSigningKey([]byte("rotated-from-config"))
	r := jwtTestRouter(false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, []byte("rotated-from-config")))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with rotated key", w.Code)
	}

	// Tokens signed with the old key stop verifying.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, original))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for stale key", w.Code)
	}
}

func TestJWTMiddleware_DevBypass(t *testing.T) {
	r := jwtTestRouter(true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-Dev-Pass", "true")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	// Bypass is dev-only; prod mode ignores the header.
	r = jwtTestRouter(false)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-Dev-Pass", "true")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("prod status = %d, want 401", w.Code)
	}
}
