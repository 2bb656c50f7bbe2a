package dedupe

import "github.com/bondline/skiptrace/internal/model"

// CollapseCandidate removes duplicate contacts and addresses from a
// single provider candidate. Provider payloads routinely repeat the same
// phone under different labels ("mobile", "primary"); the first-seen
// entry wins.
func CollapseCandidate(c model.Candidate) model.Candidate {
	phones := NewPhoneSet()
	emails := NewEmailSet()
	contacts := make([]model.Contact, 0, len(c.Contacts))
	for _, ct := range c.Contacts {
		switch ct.Type {
		case model.ContactPhone:
			if phones.Add(ct.Value) {
				contacts = append(contacts, ct)
			}
		case model.ContactEmail:
			if emails.Add(ct.Value) {
				contacts = append(contacts, ct)
			}
		default:
			contacts = append(contacts, ct)
		}
	}
	c.Contacts = contacts

	addrs := NewAddressSet()
	kept := make([]model.Address, 0, len(c.Addresses))
	for _, a := range c.Addresses {
		if addrs.Add(a) {
			kept = append(kept, a)
		}
	}
	c.Addresses = kept

	return c
}
