package history

import "github.com/youssefsiam38/agentcore/types"

// curate keeps every user entry, and keeps each maximal run of non-user
// entries only when every entry in the run is valid.
func curate(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))

	for i := 0; i < len(entries); {
		if entries[i].Message.Role == types.RoleUser {
			out = append(out, entries[i])
			i++
			continue
		}

		j := i
		valid := true
		for j < len(entries) && entries[j].Message.Role != types.RoleUser {
			if entries[j].Metadata.ValidationStatus != StatusValid {
				valid = false
			}
			j++
		}
		if valid {
			out = append(out, entries[i:j]...)
		}
		i = j
	}

	return out
}
