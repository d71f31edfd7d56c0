package stake

// Access control is a value: one owner plus a sorted moderator set. The
// checks below are plain predicates composed in front of each mutating call.

func (r *Roles) isOwner(id [20]byte) bool {
	return r != nil && r.Owner == id && id != [20]byte{}
}

// IsModerator reports whether id may inject rewards.
func (r *Roles) IsModerator(id [20]byte) bool {
	if r == nil {
		return false
	}
	for _, mod := range r.Moderators {
		if mod == id {
			return true
		}
	}
	return false
}

func requireOwner(r *Roles, caller [20]byte) error {
	if !r.isOwner(caller) {
		return revert(ErrAuthorization, reasonNotOwner)
	}
	return nil
}

func requireModerator(r *Roles, caller [20]byte) error {
	if !r.IsModerator(caller) {
		return revert(ErrAuthorization, reasonNotModerator)
	}
	return nil
}

func checkIdentities(ids [][20]byte) error {
	if len(ids) == 0 {
		return revert(ErrValidation, reasonNoIdentities)
	}
	for _, id := range ids {
		if id == ([20]byte{}) {
			return revert(ErrValidation, reasonZeroIdentity)
		}
	}
	return nil
}

// addModerators returns the identities that were not already moderators.
func (r *Roles) addModerators(ids [][20]byte) [][20]byte {
	added := make([][20]byte, 0, len(ids))
	for _, id := range ids {
		if r.IsModerator(id) {
			continue
		}
		r.Moderators = append(r.Moderators, id)
		added = append(added, id)
	}
	sortIdentities(r.Moderators)
	return added
}

// removeModerators returns the identities that were actually removed.
func (r *Roles) removeModerators(ids [][20]byte) [][20]byte {
	drop := make(map[[20]byte]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := r.Moderators[:0]
	removed := make([][20]byte, 0, len(ids))
	for _, mod := range r.Moderators {
		if _, ok := drop[mod]; ok {
			removed = append(removed, mod)
			continue
		}
		kept = append(kept, mod)
	}
	r.Moderators = kept
	return removed
}
