package security

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const staffKeyHeader = "X-Staff-Key"

// StaffGuard protects the operator endpoints (call-next, entrance,
// complete) behind a shared staff key. Only the bcrypt hash of the key
// is ever configured.
type StaffGuard struct {
	keyHash string
}

func NewStaffGuard(keyHash string) *StaffGuard {
	return &StaffGuard{keyHash: keyHash}
}

// RequireStaffKey rejects the request unless the staff key header
// matches the configured hash. With no hash configured every request is
// rejected, so operator endpoints fail closed.
func (g *StaffGuard) RequireStaffKey() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if g.keyHash == "" {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "staff access is not configured",
			})
		}

		key := e.Request.Header.Get(staffKeyHeader)
		if key == "" {
			return e.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing staff key",
			})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(g.keyHash), []byte(key)); err != nil {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "invalid staff key",
			})
		}

		return e.Next()
	}
}
