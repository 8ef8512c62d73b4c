package rate

// Headers names the provider's rate-limit response headers.
type Headers struct {
	Limit      string
	Remaining  string
	RetryAfter string
}

// StandardHeaders returns the common header mapping.
func StandardHeaders() Headers {
	return Headers{
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		RetryAfter: "Retry-After",
	}
}

// Declaration defines a provider's request budget and header mapping.
type Declaration struct {
	provider    string
	perMinute   int
	budgetFloor int
	headers     Headers
}

// Provider creates a new declaration.
func Provider(name string) Declaration {
	return Declaration{provider: name, headers: StandardHeaders()}
}

func (d Declaration) ProviderName() string { return d.provider }

// MaxRequestsPerMinute caps locally issued requests when the provider sends
// no budget headers.
func (d Declaration) MaxRequestsPerMinute(limit int) Declaration {
	d.perMinute = limit
	return d
}

// BudgetFloor keeps a reserve of header-reported budget unspent.
func (d Declaration) BudgetFloor(floor int) Declaration {
	d.budgetFloor = floor
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) PerMinute() int     { return d.perMinute }
func (d Declaration) Floor() int         { return d.budgetFloor }
func (d Declaration) HeaderMap() Headers { return d.headers }

func (d Declaration) HasLimits() bool { return d.perMinute > 0 }
