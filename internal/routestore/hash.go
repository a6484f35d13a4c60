package routestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/free4inno/intent-hub/internal/domain"
)

// ComputeHash returns a stable content hash of everything that affects a
// route's points. The synchronizer compares it against the hash stored in
// point payloads to skip unchanged routes.
func ComputeHash(r domain.Route) string {
	utterances := append([]string(nil), r.Utterances...)
	sort.Strings(utterances)
	negatives := append([]string(nil), r.NegativeSamples...)
	sort.Strings(negatives)
	canonical, _ := json.Marshal(struct {
		ID                int      `json:"id"`
		Name              string   `json:"name"`
		Description       string   `json:"description"`
		Utterances        []string `json:"utterances"`
		NegativeSamples   []string `json:"negative_samples"`
		ScoreThreshold    float64  `json:"score_threshold"`
		NegativeThreshold float64  `json:"negative_threshold"`
	}{r.ID, r.Name, r.Description, utterances, negatives, r.ScoreThreshold, r.NegativeThreshold})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
