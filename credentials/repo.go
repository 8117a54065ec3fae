package credentials

// Repo persists the current credential. Save overwrites wholesale, Load
// returns (nil, nil) when nothing is stored, and all three operations are
// atomic relative to each other: a concurrent reader never observes a
// half-written pair.
type Repo interface {
	Save(credential *Credential) error
	Load() (*Credential, error)
	Clear() error
}
