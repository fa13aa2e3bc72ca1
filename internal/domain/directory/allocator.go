package directory

import (
	"fmt"
	"regexp"
	"strconv"
)

// MaxEmployeeID is the largest number that still fits the five-digit format.
const MaxEmployeeID = 99999

var employeeIDPattern = regexp.MustCompile(`^[0-9]{5}$`)

func ValidEmployeeID(id string) bool {
	return employeeIDPattern.MatchString(id)
}

func FormatEmployeeID(n int) string {
	return fmt.Sprintf("%05d", n)
}

// NextEmployeeID returns the smallest positive number not present in existing,
// zero-padded to five digits. Entries that are not numeric are ignored.
func NextEmployeeID(existing []string) (string, error) {
	return nextFree(takenSet(existing))
}

func takenSet(existing []string) map[int]struct{} {
	taken := make(map[int]struct{}, len(existing))
	for _, id := range existing {
		n, err := strconv.Atoi(id)
		if err != nil || n <= 0 {
			continue
		}
		taken[n] = struct{}{}
	}
	return taken
}

func nextFree(taken map[int]struct{}) (string, error) {
	for n := 1; n <= MaxEmployeeID; n++ {
		if _, ok := taken[n]; !ok {
			return FormatEmployeeID(n), nil
		}
	}
	return "", ErrEmployeeIDsExhausted
}
