package domain

// SendRequest is a fully resolved provider call for one unit.
type SendRequest struct {
	// IdempotencyKey is the unit id; it is identical on every attempt of the unit.
	IdempotencyKey string
	PhoneNumberID  string
	AccessToken    string
	To             string
	Payload        map[string]any
}
