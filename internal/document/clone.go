package document

// Clone returns a deep structural copy of the document. The mutation
// queue hands each task a private clone so a failed mutation can never
// leak partial writes into the shared authoritative state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Users:                 append([]User(nil), d.Users...),
		UserProfiles:          append([]UserProfile(nil), d.UserProfiles...),
		Interests:             append([]Interest(nil), d.Interests...),
		Messages:              append([]Message(nil), d.Messages...),
		Notifications:         append([]Notification(nil), d.Notifications...),
		Matches:               append([]Match(nil), d.Matches...),
		Subscriptions:         append([]Subscription(nil), d.Subscriptions...),
		Pulses:                append([]Pulse(nil), d.Pulses...),
		Invites:               append([]Invite(nil), d.Invites...),
		PasswordResetRequests: append([]PasswordResetRequest(nil), d.PasswordResetRequests...),
		ActivityLogs:          append([]ActivityLog(nil), d.ActivityLogs...),
		Meta: Meta{
			LastEngagementRunAt: d.Meta.LastEngagementRunAt,
			EventSeq:            d.Meta.EventSeq,
			Events:              append([]Event(nil), d.Meta.Events...),
		},
	}

	// The shallow struct copies above share nested slices and maps with
	// the source; re-point them at private copies.
	for i := range out.Users {
		out.Users[i].KeyInterestCategories = cloneStrings(out.Users[i].KeyInterestCategories)
	}
	for i := range out.UserProfiles {
		out.UserProfiles[i].KeyInterestCategories = cloneStrings(out.UserProfiles[i].KeyInterestCategories)
	}
	for i := range out.Matches {
		out.Matches[i].MatchedCategories = cloneStrings(out.Matches[i].MatchedCategories)
	}
	for i := range out.Notifications {
		out.Notifications[i].Meta = cloneStringMap(out.Notifications[i].Meta)
	}
	for i := range out.ActivityLogs {
		out.ActivityLogs[i].Meta = cloneStringMap(out.ActivityLogs[i].Meta)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
