package cache

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// keyNamespace prefixes every result key, before the placement.
const keyNamespace = "ads:"

// Key identifies one cached selection result. Placement comes first in the
// rendered key so that all results of a placement share a prefix.
type Key struct {
	Placement   string
	Type        models.AdType
	Limit       int
	UserID      string
	Category    string
	ContextHash string
}

// NewKey builds the key of a normalized selection request. Viewer attributes
// other than the user id are folded into ContextHash.
func NewKey(req models.SelectionRequest) Key {
	return Key{
		Placement:   req.Placement,
		Type:        req.Type,
		Limit:       req.Limit,
		UserID:      req.Context.UserID,
		Category:    req.Category,
		ContextHash: contextHash(req.Context),
	}
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(placementPrefix(k.Placement))
	b.WriteString(string(k.Type))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Limit))
	b.WriteByte(':')
	b.WriteString(k.UserID)
	b.WriteByte(':')
	b.WriteString(k.Category)
	b.WriteByte(':')
	b.WriteString(k.ContextHash)
	return b.String()
}

// placementPrefix folds case so campaign placements match the normalized
// placement of a selection request.
func placementPrefix(placement string) string {
	return keyNamespace + strings.ToLower(strings.TrimSpace(placement)) + ":"
}

func contextHash(rc models.RequestContext) string {
	interests := append([]string(nil), rc.Interests...)
	sort.Strings(interests)

	fields := []string{
		rc.Region, rc.Country, rc.City, strconv.Itoa(rc.Age), rc.Gender,
		strings.Join(interests, ","), rc.Segment, rc.Device, rc.OS, rc.Browser,
	}
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(fields, "\x00")), 16)
}
