package note

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// IDPrefix starts every note id.
const IDPrefix = "qp-"

// minHashLen is the shortest hash suffix handed out. Suffixes grow one
// character at a time when a shorter one is already taken.
const minHashLen = 4

// ErrInvalidID is returned for ids that do not have the qp-<suffix> shape.
var ErrInvalidID = errors.New("invalid note id")

var idPattern = regexp.MustCompile(`^qp-[0-9a-z]+$`)

// IDScheme selects how new note ids are generated.
type IDScheme string

const (
	SchemeHash      IDScheme = "hash"
	SchemeUUID      IDScheme = "uuid"
	SchemeTimestamp IDScheme = "timestamp"
)

// ParseIDScheme parses a scheme name. The empty string is SchemeHash.
func ParseIDScheme(s string) (IDScheme, error) {
	switch IDScheme(strings.ToLower(s)) {
	case "", SchemeHash:
		return SchemeHash, nil
	case SchemeUUID:
		return SchemeUUID, nil
	case SchemeTimestamp:
		return SchemeTimestamp, nil
	}
	return "", fmt.Errorf("unknown id scheme %q", s)
}

// ValidateID checks that id has the qp-<suffix> shape. Suffixes never
// contain dashes, so ids can be recovered from slugged filenames.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// GenerateID returns a fresh note id. exists reports whether an id is
// already taken; it may be nil for an empty store.
func GenerateID(scheme IDScheme, title string, now time.Time, exists func(string) bool) (string, error) {
	if exists == nil {
		exists = func(string) bool { return false }
	}

	switch scheme {
	case SchemeHash, "":
		for nonce := 0; ; nonce++ {
			sum := blake2b.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d", title, now.UnixNano(), nonce)))
			digest := hex.EncodeToString(sum[:])
			for n := minHashLen; n <= len(digest); n++ {
				id := IDPrefix + digest[:n]
				if !exists(id) {
					return id, nil
				}
			}
		}

	case SchemeUUID:
		for {
			u, err := uuid.NewV7()
			if err != nil {
				return "", fmt.Errorf("generating uuid: %w", err)
			}
			id := IDPrefix + strings.ReplaceAll(u.String(), "-", "")
			if !exists(id) {
				return id, nil
			}
		}

	case SchemeTimestamp:
		for ms := now.UnixMilli(); ; ms++ {
			id := IDPrefix + strconv.FormatInt(ms, 36)
			if !exists(id) {
				return id, nil
			}
		}
	}

	return "", fmt.Errorf("unknown id scheme %q", scheme)
}
