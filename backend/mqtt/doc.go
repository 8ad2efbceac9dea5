// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package mqtt connects the gateway to an MQTT broker.
//
// The server address may be given as "host", "host:port" or as a full URL
// ("tcp://host:1883", "ssl://host:8883"). Without a port, 1883 is used for plain
// connections and 8883 for TLS connections.
//
// The client does not reconnect by itself. When the connection is lost, the
// handler that was set with SetConnectionLostHandler is called and the owner of
// the client is expected to call Connect again. Every call to Connect creates a
// new session, so subscriptions have to be made again after reconnecting.
//
// Messages received on subscribed topics are buffered in the channel returned
// by Messages. When the buffer is full, messages are dropped.
package mqtt
