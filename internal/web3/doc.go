// Package web3 defines the wallet provider contract used across walletlink:
// an EIP-1193 style request/response surface plus typed subscriptions for
// the accountsChanged and chainChanged notifications. Concrete providers live
// in the ethereum (JSON-RPC endpoint of a wallet) and simulated (in-process)
// sub-packages; provider.Detect chooses between them for the daemon.
package web3
