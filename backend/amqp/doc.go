// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package amqp connects the gateway to an AMQP server.
//
// Messages are published to a topic exchange ("amq.topic" by default). MQTT
// style topics are converted to routing keys by replacing "/" with "." and the
// single-level wildcard "+" with "*". This is the same mapping that the MQTT
// plugin of RabbitMQ uses, so MQTT and AMQP clients can share the exchange.
//
// Every call to Subscribe declares an exclusive, auto-deleted queue that is
// bound to the exchange with the converted topic filter.
//
// The client does not reconnect by itself. When the connection is closed by
// the server or the network, the handler that was set with
// SetConnectionLostHandler is called.
package amqp
