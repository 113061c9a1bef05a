package wallet

// Session is a snapshot of the wallet connection. The zero value is both
// the initial and the disconnected state.
type Session struct {
	// Account is the selected account exactly as reported by the wallet.
	Account string `json:"account,omitempty"`
	// ChainID is the active chain; zero means unknown.
	ChainID     uint64 `json:"chainId,omitempty"`
	IsConnected bool   `json:"isConnected"`
	IsLoading   bool   `json:"isLoading"`
}

// HasAccount reports whether an account is selected.
func (s Session) HasAccount() bool { return s.Account != "" }

// HasChain reports whether the active chain is known.
func (s Session) HasChain() bool { return s.ChainID != 0 }

// selectAccount applies the "first authorised account or none" rule.
func selectAccount(accounts []string) (string, bool) {
	if len(accounts) == 0 || accounts[0] == "" {
		return "", false
	}
	return accounts[0], true
}
