package classify

import (
	"sort"
	"strings"

	"github.com/tallyho-dev/tallyho/internal/model"
)

// DominantByGateway computes, per gateway, the single most frequent account
// code among that gateway's already-resolved transactions. Computed once per
// run; phase D then assigns it to gateway transactions that never reached an
// invoice. Resolution comes from annotations written earlier in the run (or
// a previous run), so a two-pass run sees more resolved population on the
// second pass.
func DominantByGateway(gateway []model.Transaction, annotations func(id string) *model.MatchAnnotation) map[string]string {
	counts := make(map[string]map[string]int)

	for i := range gateway {
		tx := &gateway[i]
		name := strings.ToLower(tx.Meta(model.MetaGatewayName))
		if name == "" {
			continue
		}
		ann := annotations(tx.ID)
		if ann == nil || ann.AccountCode == "" {
			continue
		}
		byCode, ok := counts[name]
		if !ok {
			byCode = make(map[string]int)
			counts[name] = byCode
		}
		byCode[ann.AccountCode]++
	}

	dominant := make(map[string]string, len(counts))
	for name, byCode := range counts {
		codes := make([]string, 0, len(byCode))
		for code := range byCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		best := codes[0]
		for _, code := range codes[1:] {
			if byCode[code] > byCode[best] {
				best = code
			}
		}
		dominant[name] = best
	}
	return dominant
}
