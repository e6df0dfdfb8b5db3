package chat

// Identity is the authenticated principal behind a connection. It is
// established out of band, before the session handler runs; an anonymous
// connection carries the zero Identity.
type Identity struct {
	UserID        int64
	Username      string
	Authenticated bool
}

// Anonymous is the identity of an unauthenticated connection. Such
// connections may join groups and receive broadcasts but are excluded from
// presence tracking.
var Anonymous = Identity{}
