/*
Copyright (c) 2013-2018 The btcsuite developers
Copyright (c) 2015-2016 The Decred developers
Use of this source code is governed by an ISC
license that can be found in the LICENSE file.

Dashspv is a simplified payment verification (SPV) Dash wallet written in Go.

It keeps the header chain, downloads filtered blocks that match the wallet's
addresses and publishes signed transactions to its peers. Private keys never
leave the machine: the wallet mnemonic is kept encrypted in the data directory
and only decrypted when a transaction is signed.

Usage:

	dashspv [OPTIONS]

Create a new wallet:

	dashspv --testnet --create

Restore a wallet from its mnemonic:

	dashspv --testnet --restore

Send funds once the chain is synced:

	dashspv --testnet --payto=yXXXX --amount=1.5

For an up-to-date help message:

	dashspv --help

The long form of all option flags (except -C) can be specified in a configuration
file that is automatically parsed when dashspv starts up. By default, the
configuration file is located at ~/.dashspv/dashspv.conf on POSIX-style operating
systems and %LOCALAPPDATA%\dashspv\dashspv.conf on Windows. The -C (--configfile)
flag can be used to override this location.
*/
package main
