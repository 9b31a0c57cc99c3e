package paypal

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type payer struct {
	PaymentMethod string `json:"payment_method"`
}

type amount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type transaction struct {
	Amount      amount `json:"amount"`
	Description string `json:"description,omitempty"`
	Custom      string `json:"custom,omitempty"`
}

type redirectURLs struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type paymentRequest struct {
	Intent       string        `json:"intent"`
	Payer        payer         `json:"payer"`
	Transactions []transaction `json:"transactions"`
	RedirectURLs redirectURLs  `json:"redirect_urls"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paymentResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Links []link `json:"links"`
}

// approvalURL link the buyer is redirected to.
func (p *paymentResponse) approvalURL() string {
	for _, l := range p.Links {
		if l.Method == "REDIRECT" {
			return l.Href
		}
	}
	for _, l := range p.Links {
		if l.Rel == "approval_url" {
			return l.Href
		}
	}
	return ""
}

type executeRequest struct {
	PayerID string `json:"payer_id"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

// Payment states reported by the gateway.
const (
	STATE_CREATED  = "created"
	STATE_APPROVED = "approved"
	STATE_FAILED   = "failed"
)
