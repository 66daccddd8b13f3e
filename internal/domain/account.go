package domain

// Account is a read-only copy of the authenticated identity owned by the
// external auth collaborator. Containers never mutate it.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	Verified    bool
}
