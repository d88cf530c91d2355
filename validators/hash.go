package validators

import "errors"

var ErrHashInvalid = errors.New("invalid content hash provided")

// HashValidator checks that h looks like a hex digest of a supported
// length (MD5, SHA-1 or SHA-256). The server never recomputes the
// digest itself, it only keys storage by it.
func HashValidator(h string) error {
	switch len(h) {
	case 32, 40, 64:
	default:
		return ErrHashInvalid
	}

	for _, r := range h {
		ok := r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F'
		if !ok {
			return ErrHashInvalid
		}
	}

	return nil
}
