package entity

// Profile is the common identity shape shared by both sides of a trade.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Verified bool   `json:"is_verified"`
}

// BusinessInfo carries the seller-only fields.
type BusinessInfo struct {
	BusinessName string `json:"business_name"`
	Location     string `json:"location,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
}

// Participant is a tagged union: Buyer(profile) | Seller(profile, business).
// Resolved once at conversation-load time instead of probing optional fields
// on every read.
type Participant interface {
	Profile() Profile
	participant()
}

type Buyer struct {
	Info Profile
}

func (b Buyer) Profile() Profile { return b.Info }
func (Buyer) participant()       {}

type Seller struct {
	Info     Profile
	Business BusinessInfo
}

func (s Seller) Profile() Profile { return s.Info }
func (Seller) participant()       {}

// DisplayName prefers the business name for sellers, then the full name,
// then the username.
func DisplayName(p Participant) string {
	if p == nil {
		return ""
	}
	if s, ok := p.(Seller); ok && s.Business.BusinessName != "" {
		return s.Business.BusinessName
	}
	prof := p.Profile()
	if prof.FullName != "" {
		return prof.FullName
	}
	return prof.Username
}
