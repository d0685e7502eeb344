package custody

// Ref identifies one specific asset inside a collection.
type Ref struct {
	Collection string `json:"collection"`
	Token      string `json:"token"`
}

func (r Ref) String() string {
	return r.Collection + "/" + r.Token
}
