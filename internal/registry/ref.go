package registry

import (
	"strconv"

	"github.com/google/uuid"
)

// HarvestRef addresses a harvest by internal id or by external uuid. Exactly
// one of the fields is set.
type HarvestRef struct {
	ID   int64
	UUID string
}

// ParseHarvestRef treats an all-digit string as the internal id and a valid
// UUID as the external id. Anything else is a validation error.
func ParseHarvestRef(raw string) (HarvestRef, error) {
	if raw != "" && isDigits(raw) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return HarvestRef{}, invalid("id", "harvest id %q is out of range", raw)
		}
		return HarvestRef{ID: id}, nil
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return HarvestRef{}, invalid("id", "harvest id %q is neither numeric nor a UUID", raw)
	}
	return HarvestRef{UUID: u.String()}, nil
}

func (r HarvestRef) String() string {
	if r.UUID != "" {
		return r.UUID
	}
	return strconv.FormatInt(r.ID, 10)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
