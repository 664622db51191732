/*
Package netsync implements the chain synchronization of the SPV client. The
Manager serializes the messages of every connected peer on one goroutine,
picks a download peer among them and drives the download: block headers up
to the earliest key time of the wallet, then merkle blocks filtered by the
wallet's bloom filter. Verified blocks are connected to the header chain,
persisted and their matched transactions are fed to the wallet.

When the download peer disconnects or stalls the Manager promotes another
connected peer and resumes from the chain tip, so blocks accepted before are
never fetched or verified again. The Manager also publishes wallet
transactions and counts how many peers relayed each transaction.
*/
package netsync
