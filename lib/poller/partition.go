package poller

import (
	"sort"

	"github.com/fiffu/postwatch/lib/models"
)

// Partitioned is a fetched batch split up by monitored account.
type Partitioned struct {
	Groups    map[string]models.Items // newest first, ids unique per account
	Invalid   models.Items            // missing an id or an account
	Unmatched int                     // belonged to accounts nobody monitors
}

// Partition groups items under the configured accounts they belong to,
// matching case-insensitively. accounts must already be normalized.
func Partition(accounts []string, items models.Items) Partitioned {
	p := Partitioned{Groups: make(map[string]models.Items, len(accounts))}

	configured := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		configured[a] = true
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		account := models.NormalizeAccount(item.Account)
		if item.ID == "" || account == "" {
			p.Invalid = append(p.Invalid, item)
			continue
		}
		if !configured[account] {
			p.Unmatched++
			continue
		}
		key := account + "/" + item.ID
		if seen[key] {
			continue
		}
		seen[key] = true

		item.Account = account
		p.Groups[account] = append(p.Groups[account], item)
	}

	for _, group := range p.Groups {
		sort.SliceStable(group, func(i, j int) bool {
			return models.CompareIDs(group[i].ID, group[j].ID) > 0
		})
	}
	return p
}

// NewerThan returns the leading items of a newest-first group whose ids are
// strictly greater than watermark.
func NewerThan(group models.Items, watermark string) models.Items {
	n := 0
	for n < len(group) && models.CompareIDs(group[n].ID, watermark) > 0 {
		n++
	}
	return group[:n]
}
