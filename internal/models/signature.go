package models

// Signature is one hop's attestation of the content it observed.
type Signature struct {
	Name          string `json:"name" yaml:"name"`
	Hash          string `json:"hash" yaml:"hash"`
	ContentType   string `json:"contentType" yaml:"contentType"`
	ContentLength int    `json:"contentLength" yaml:"contentLength"`
}

// Signatures is the ordered, append-only audit trail of a relayed message.
type Signatures struct {
	Items []Signature `json:"items" yaml:"items"`
}

// Len returns the number of hops recorded.
func (s Signatures) Len() int {
	return len(s.Items)
}

// Append returns a copy of s with sig added at the end. The receiver is never
// modified so callers can share a trail between goroutines.
func (s Signatures) Append(sig Signature) Signatures {
	items := make([]Signature, 0, len(s.Items)+1)
	items = append(items, s.Items...)
	items = append(items, sig)
	return Signatures{Items: items}
}
