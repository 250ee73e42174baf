// Package subscription implements the subscription store of the event
// distribution core.
//
// A subscription is a standing request by a client to be notified of events
// of one kind, optionally narrowed by a filter and optionally delivered to an
// external callback endpoint. Subscriptions are independent of streaming
// connections: a webhook subscription keeps delivering after its client's
// connection is gone.
//
// The store owns all subscription records. Status moves through
// {Active,Paused} freely and terminally into Cancelled or Expired; terminal
// records are removed from the lookup indices but retained for inspection.
package subscription
