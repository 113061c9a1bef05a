// Package wallet owns the connection state between walletlink and a user's
// wallet provider. A Manager keeps one Session, bridges the provider's
// accountsChanged and chainChanged notifications into it and implements the
// connect, disconnect and switch-network flows, including the
// wallet_addEthereumChain fallback for chains the wallet does not know yet.
package wallet
