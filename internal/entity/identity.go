package entity

// AnonymousSubject is the access-control subject of unauthenticated callers.
const AnonymousSubject = "anonymous"

// Identity is either an authenticated user or the anonymous caller.
// The zero value is anonymous.
type Identity struct {
	userID string
}

func AuthenticatedIdentity(userID string) Identity {
	return Identity{userID: userID}
}

func AnonymousIdentity() Identity {
	return Identity{}
}

func (i Identity) IsAnonymous() bool {
	return i.userID == ""
}

// UserID returns the authenticated user id, or "" for the anonymous caller.
func (i Identity) UserID() string {
	return i.userID
}

// Subject is the name access control and audit know this caller by.
func (i Identity) Subject() string {
	if i.IsAnonymous() {
		return AnonymousSubject
	}
	return i.userID
}

func (i Identity) String() string {
	return i.Subject()
}
