package core

import (
	"fmt"
	"strings"
)

// MaxAddressLength bounds event bus addresses
const MaxAddressLength = 255

// ValidateAddress rejects addresses a consumer could never be registered
// under: empty, oversized or containing whitespace
func ValidateAddress(address string) error {
	switch {
	case address == "":
		return &Error{Code: "INVALID_ADDRESS", Message: "address cannot be empty"}
	case len(address) > MaxAddressLength:
		return &Error{Code: "INVALID_ADDRESS", Message: fmt.Sprintf("address longer than %d bytes", MaxAddressLength)}
	case strings.ContainsAny(address, " \t\r\n"):
		return &Error{Code: "INVALID_ADDRESS", Message: fmt.Sprintf("address %q contains whitespace", address)}
	}
	return nil
}

// ValidateVerticle rejects a nil verticle
func ValidateVerticle(verticle Verticle) error {
	if verticle == nil {
		return &Error{Code: "INVALID_VERTICLE", Message: "verticle cannot be nil"}
	}
	return nil
}

// ValidateBody rejects a nil message body
func ValidateBody(body interface{}) error {
	if body == nil {
		return &Error{Code: "INVALID_BODY", Message: "body cannot be nil"}
	}
	return nil
}

// FailFast panics on a non-nil err. Reserved for programming errors.
func FailFast(err error) {
	if err != nil {
		panic(fmt.Errorf("fail-fast: %w", err))
	}
}

// FailFastIf panics with message when condition holds
func FailFastIf(condition bool, message string) {
	if condition {
		FailFast(fmt.Errorf("%s", message))
	}
}
