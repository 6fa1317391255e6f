package user

// IdentityProvider resolves a bearer credential into a principal
type IdentityProvider interface {
	Resolve(credential string) (*Principal, error)
}
