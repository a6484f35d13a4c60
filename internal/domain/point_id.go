package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Point ids are name-based UUIDs over (route_id, utterance) so independent
// sync runs agree on identity without coordination, and re-embedding the
// same utterance upserts in place. Negative samples hash under a separate
// prefix: the same text may legally appear as a positive in one route and a
// negative in another.

// PositivePointID returns the stable id for a (route, utterance) pair.
func PositivePointID(routeID int, utterance string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("route:%d|utt:%s", routeID, utterance))).String()
}

// NegativePointID returns the stable id for a (route, negative sample) pair.
func NegativePointID(routeID int, sample string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("route:%d|neg:%s", routeID, sample))).String()
}
