package auth

import (
	"strings"

	"github.com/google/uuid"
)

// uidNamespace scopes name-derived user ids
var uidNamespace = uuid.MustParse("6f1c7a52-3d0e-5b8a-9c41-2e7d5a9b0f13")

// User is a signed-in identity
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// NewUser derives a stable uid from the display name
func NewUser(displayName, photoURL string) User {
	name := strings.TrimSpace(displayName)
	return User{
		UID:         uuid.NewSHA1(uidNamespace, []byte(strings.ToLower(name))).String(),
		DisplayName: name,
		PhotoURL:    photoURL,
	}
}
