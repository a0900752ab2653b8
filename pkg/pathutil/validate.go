// Package pathutil provides name validation and identity normalization utilities.
package pathutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ctenopoma/issuer/pkg/errclass"
)

// ValidateFileName checks that name is a plain file name suitable for a
// store or lock file inside the shared root: no separators, no parent
// references, no control characters.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errclass.ErrNameInvalid.WithMessage("file name must not be empty")
	}

	name = norm.NFC.String(name)

	if name == "." || name == ".." || strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("file name must not contain '..': %s", name)
	}
	if strings.ContainsAny(name, `/\:`) {
		return errclass.ErrNameInvalid.WithMessagef("file name must not contain separators: %s", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("file name must not contain control characters: %q", name)
		}
	}
	return nil
}

// NormalizeOwner canonicalizes an owner identity so the same account name
// compares equal regardless of the platform that wrote it. Windows reports
// "DOMAIN\user"; only the account part is kept.
func NormalizeOwner(owner string) string {
	owner = strings.TrimSpace(norm.NFC.String(owner))
	if i := strings.LastIndex(owner, `\`); i >= 0 {
		owner = owner[i+1:]
	}
	return owner
}

// SameOwner reports whether two owner identities refer to the same account.
// Account names are compared case-insensitively, as Windows does.
func SameOwner(a, b string) bool {
	return strings.EqualFold(NormalizeOwner(a), NormalizeOwner(b))
}
