/*
Package spv wires the pieces of a Dash SPV client into a single Engine: the
chain of merkle blocks, the wallet, the sync manager, the address and
connection managers, and the event bus observers subscribe to.

One Engine serves one network and one wallet. Construct it with New, call
Start to begin connecting to peers and Stop to shut it down. The database
context passed in the Config is owned by the caller and must outlive the
Engine.

	engine, err := spv.New(&spv.Config{
		Params:          &chaincfg.MainNetParams,
		DatabaseContext: databaseContext,
		AccountKey:      accountKey,
		EarliestKeyTime: keystore.EarliestKeyTime,
	})
	if err != nil {
		return err
	}
	err = engine.Subscribe(events.TopicBalanceChanged, func(event events.Event) {
		fmt.Println("Balance:", event.(*events.BalanceChanged).Balance)
	})
	...
	err = engine.Start()
*/
package spv
